package interceptor

import (
	"io"
	"net/http"

	snapshot "github.com/cygnal-app/interceptor/pkg/response-snapshot"
)

// ServeHTTP implements the http.Handler interface, acting as a forward proxy.
// Clients configured to use it as their HTTP proxy get the same handling as RoundTrip,
// with a Cache-Status header added to the response.
// Tunnels (CONNECT) are not supported.
func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		http.Error(w, "CONNECT not supported", http.StatusMethodNotAllowed)
		return
	}
	if !r.URL.IsAbs() || r.URL.Host == "" {
		http.Error(w, "Absolute request URL required", http.StatusBadRequest)
		return
	}

	out := r.Clone(r.Context())
	out.RequestURI = ""
	if r.ContentLength == 0 {
		out.Body = nil
	}
	snapshot.RemoveHopHeaders(out.Header)

	res, cs, err := i.serve(out)
	i.logRequest(r, cs, err)
	if err != nil {
		http.Error(w, "Could not get response", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()

	snapshot.RemoveHopHeaders(res.Header)
	snapshot.CopyHeader(w.Header(), res.Header)
	w.Header().Add("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		i.log.Error().Err(err).Msg("Could not write response body to client")
	}
	i.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}
