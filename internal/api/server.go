package api

import (
	"log"
	"net/http"

	"github.com/kilroy-kilroy/Call-Recorder/internal/notify"
)

// Handler assembles the HTTP routes and the websocket event stream.
func Handler(core Core, hub *notify.Hub, downloadDir string, hooks StatusHooks) http.Handler {
	mux := http.NewServeMux()

	notify.RegisterWSRoute(mux, hub)
	registerAPIRoutes(mux, core, downloadDir, hooks)

	return mux
}

// Serve blocks serving the control API. addr should be a loopback address;
// the API carries credentials and is not meant to leave the machine.
func Serve(addr string, core Core, hub *notify.Hub, downloadDir string, hooks StatusHooks) error {
	h := Handler(core, hub, downloadDir, hooks)

	log.Printf("control API at http://%s", addr)
	return http.ListenAndServe(addr, h)
}
