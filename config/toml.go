package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/creachadair/atomicfile"

	pbos "github.com/patchbay-rpc/patchbay/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	if configTemplate, err = template.New("configFileTemplate").Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config and static directories if they don't
// exist, and the default config file if it is missing. It panics if it
// fails, since the process cannot run without a home directory.
func EnsureRoot(rootDir string) {
	if err := pbos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := pbos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := pbos.EnsureDir(filepath.Join(rootDir, defaultStaticDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}

	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)

	// Write default config file if missing.
	if !pbos.FileExists(configFilePath) {
		WriteConfigFile(configFilePath, DefaultConfig())
	}
}

// WriteConfigFile renders config using the template and writes it to
// configFilePath. The file is replaced atomically so a crash mid-write never
// leaves a truncated config behind.
func WriteConfigFile(configFilePath string, config *Config) {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		panic(err)
	}

	if _, err := atomicfile.WriteAll(configFilePath, &buffer, 0644); err != nil {
		panic(err)
	}
}

/****** these are for test settings ***********/

// ResetTestRoot creates a fresh, unique home directory under os.TempDir()
// with the default config file and subdirectories written, and returns a
// test configuration rooted there. Callers own the directory and should
// remove it when done.
func ResetTestRoot(testName string) *Config {
	rootDir, err := os.MkdirTemp("", fmt.Sprintf("%s_", testName))
	if err != nil {
		panic(err)
	}

	EnsureRoot(rootDir)

	return TestConfig().SetRoot(rootDir)
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/mypatchbay/www") or
# relative to the home directory (e.g. "www"). The home directory is
# "$HOME/.patchbayd" by default, and can be changed via $PBHOME env variable
# or --home cmd flag.

##### main base config options #####

# A custom human readable name for this gateway instance
moniker = "{{ .BaseConfig.Moniker }}"

# Output level for logging: debug, info, warn, error or none
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

##### rpc server configuration options #####
[rpc]

# TCP or UNIX socket address for the RPC server to listen on
laddr = "{{ .RPC.ListenAddress }}"

# URL path the call endpoint is served under
endpoint = "{{ .RPC.Endpoint }}"

# Name of the codec used when a request does not pick one via Content-Type:
# json | cbor
codec = "{{ .RPC.Codec }}"

# A list of origins a cross-domain request can be executed from
# Default value '[]' disables cors support
# Use '["*"]' to allow any origin
cors_allowed_origins = [{{ range .RPC.CORSAllowedOrigins }}{{ printf "%q, " . }}{{end}}]

# A list of methods the client is allowed to use with cross-domain requests
cors_allowed_methods = [{{ range .RPC.CORSAllowedMethods }}{{ printf "%q, " . }}{{end}}]

# A list of non simple headers the client is allowed to use with cross-domain requests
cors_allowed_headers = [{{ range .RPC.CORSAllowedHeaders }}{{ printf "%q, " . }}{{end}}]

# Maximum number of simultaneous connections.
# If you want to accept a larger number than the default, make sure
# you increase your OS limits.
# 0 - unlimited.
# Should be < {ulimit -Sn} - {N of wal, db and other open files}
# 1024 - 50 = 974 = ~900
max_open_connections = {{ .RPC.MaxOpenConnections }}

# How long to wait when reading a request before closing the connection
read_timeout = "{{ .RPC.ReadTimeout }}"

# How long to wait for a reply to be computed and written before closing
# the connection. Long running calls and batches are bounded by this.
write_timeout = "{{ .RPC.WriteTimeout }}"

# Maximum size of request body, in bytes
max_body_bytes = {{ .RPC.MaxBodyBytes }}

# Maximum size of request header, in bytes
max_header_bytes = {{ .RPC.MaxHeaderBytes }}

##### static file server configuration options #####
[static]

# Serve files from the static root next to the call endpoint
enabled = {{ .Static.Enabled }}

# Directory the files are served from. Relative paths are rooted in the
# home directory.
root = "{{ .Static.Root }}"

# Cache-Control max-age, in seconds, attached to every served file
max_age = {{ .Static.MaxAge }}

##### instrumentation configuration options #####
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# prometheus_listen_addr.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Maximum number of simultaneous connections.
# If you want to accept a larger number than the default, make sure
# you increase your OS limits.
# 0 - unlimited.
max_open_connections = {{ .Instrumentation.MaxOpenConnections }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`
