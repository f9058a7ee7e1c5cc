package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/patchbay-rpc/patchbay/codec"
	"github.com/patchbay-rpc/patchbay/libs/log"
	"github.com/patchbay-rpc/patchbay/rpc/dispatch"
)

// OptionsHeader carries per-request protocol options as a comma-separated
// token list.
const OptionsHeader = "X-Patchbay-Options"

// optContinueOnError disables batch early-bail for one request.
const optContinueOnError = "continue-on-error"

// callHandler serves the call endpoint. Protocol-level problems, codec
// negotiation included, are reported in band with a 200 status; HTTP-level
// status codes are reserved for the transport itself.
type callHandler struct {
	disp         *dispatch.Dispatcher
	defaultCodec codec.Codec
	logger       log.Logger
}

// NewCallHandler returns the handler for the call endpoint. Requests are
// decoded with the codec named by their Content-Type, falling back to
// defaultCodec when the header is absent; replies are encoded per the
// Accept header when it names a supported type, else with the request's
// codec.
func NewCallHandler(disp *dispatch.Dispatcher, defaultCodec codec.Codec, logger log.Logger) http.Handler {
	return &callHandler{disp: disp, defaultCodec: defaultCodec, logger: logger}
}

func (h *callHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	reqCodec := h.defaultCodec
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			mt = ct
		}
		c, ok := codec.ByContentType(mt)
		if !ok {
			h.write(w, h.defaultCodec,
				dispatch.Failure(fmt.Sprintf("Not able to decode media type %s", ct)).Envelope())
			return
		}
		reqCodec = c
	}

	respCodec := reqCodec
	if accept := r.Header.Get("Accept"); accept != "" {
		c, ok := negotiateAccept(accept, reqCodec)
		if !ok {
			h.write(w, respCodec,
				dispatch.Failure(fmt.Sprintf("Not able to encode any media type matching %s", accept)).Envelope())
			return
		}
		respCodec = c
	}

	opts := dispatch.RequestOptions{}
	for _, tok := range strings.Split(r.Header.Get(OptionsHeader), ",") {
		if strings.TrimSpace(tok) == optContinueOnError {
			opts.ContinueOnError = true
		}
	}

	// The body is read in full before the guard is taken, so a slow client
	// upload never stalls other requests.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.write(w, respCodec,
			dispatch.Failure(fmt.Sprintf("reading request body: %v", err)).Envelope())
		return
	}

	// The guard spans decode, dispatch, and encode, and is released before
	// anything touches the network.
	guard := h.disp.Guard()
	guard.Acquire()

	var reply interface{}
	if v, err := reqCodec.Decode(body); err != nil {
		reply = dispatch.Failure(fmt.Sprintf("decoding request: %v", err)).Envelope()
	} else {
		reply = h.disp.Handle(r.Context(), v, opts)
	}

	out, err := respCodec.Encode(reply)
	if err != nil {
		// A reply that cannot be encoded collapses to a single failure
		// envelope, even when the request was a batch.
		out, err = respCodec.Encode(
			dispatch.Failure(fmt.Sprintf("encoding response: %v", err)).Envelope())
	}
	guard.Release()

	if err != nil {
		h.logger.Error("failure envelope did not encode", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", respCodec.ContentType())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		h.logger.Debug("writing RPC response", "err", err)
	}
}

func (h *callHandler) write(w http.ResponseWriter, c codec.Codec, envelope map[string]interface{}) {
	out, err := c.Encode(envelope)
	if err != nil {
		h.logger.Error("failure envelope did not encode", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", c.ContentType())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		h.logger.Debug("writing RPC response", "err", err)
	}
}

// negotiateAccept picks the response codec for an Accept header. A wildcard
// anywhere in the list keeps the request's codec; otherwise the first
// supported media type wins.
func negotiateAccept(header string, reqCodec codec.Codec) (codec.Codec, bool) {
	types := strings.Split(header, ",")
	for i, t := range types {
		t = strings.TrimSpace(t)
		if j := strings.IndexByte(t, ';'); j >= 0 {
			t = strings.TrimSpace(t[:j])
		}
		types[i] = t
	}
	for _, t := range types {
		if t == "*/*" || t == "application/*" {
			return reqCodec, true
		}
	}
	for _, t := range types {
		if c, ok := codec.ByContentType(t); ok {
			return c, true
		}
	}
	return nil, false
}
