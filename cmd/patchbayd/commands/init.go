package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfg "github.com/patchbay-rpc/patchbay/config"
	pbos "github.com/patchbay-rpc/patchbay/libs/os"
)

// InitFilesCmd initializes a fresh patchbay home directory.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a patchbay home directory",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

// initFilesWithConfig seeds the static surface. The config file itself is
// written by EnsureRoot when missing.
func initFilesWithConfig(conf *cfg.Config) error {
	if err := pbos.EnsureDir(conf.Static.Dir(), 0700); err != nil {
		return err
	}

	indexFile := filepath.Join(conf.Static.Dir(), "index.html")
	if pbos.FileExists(indexFile) {
		logger.Info("Found static index", "path", indexFile)
	} else {
		if err := os.WriteFile(indexFile, []byte(staticIndexHTML), 0644); err != nil {
			return err
		}
		logger.Info("Generated static index", "path", indexFile)
	}

	return nil
}

const staticIndexHTML = `<!DOCTYPE html>
<html>
  <head>
    <title>patchbay</title>
  </head>
  <body>
    <h1>patchbay</h1>
    <p>POST calls to the RPC endpoint, for example:</p>
    <pre>curl -d '{"object": "clock", "method": "Now", "args": []}' http://127.0.0.1:7820/rpc</pre>
  </body>
</html>
`
