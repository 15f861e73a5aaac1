package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/itiky/shared-list/broadcast"
	"github.com/itiky/shared-list/model"
)

const maxBodyBytes = 1 << 20

// HTTPHandler exposes ListService over HTTP and relays broadcast events over WebSocket.
type HTTPHandler struct {
	svc        *ListService
	subscriber broadcast.Subscriber
	upgrader   websocket.Upgrader
	router     *mux.Router
}

// ServeHTTP implements http.Handler.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *HTTPHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "It works!")
}

func (h *HTTPHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) addUser(w http.ResponseWriter, r *http.Request) {
	values, err := requestValues(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	item, err := h.svc.AddItem(r.Context(), values.Get("name"), values.Get("deviceId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.AddResponse{Id: item.Id, Name: item.Name})
}

func (h *HTTPHandler) removeUser(w http.ResponseWriter, r *http.Request) {
	values, err := requestValues(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	req := model.RemoveRequest{DeviceId: values.Get("deviceId")}
	if req.Id, err = int64Param(values, "id"); err != nil {
		writeError(w, err)
		return
	}
	if req.Index, err = intParam(values, "index"); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.RemoveItem(r.Context(), req.Id, req.Index, req.DeviceId); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.RemoveResponse{Id: req.Id, Index: req.Index})
}

func (h *HTTPHandler) moveUser(w http.ResponseWriter, r *http.Request) {
	values, err := requestValues(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	req := model.MoveRequest{DeviceId: values.Get("deviceId")}
	if req.SrcIndex, err = intParam(values, "src"); err != nil {
		writeError(w, err)
		return
	}
	if req.DestIndex, err = intParam(values, "dest"); err != nil {
		writeError(w, err)
		return
	}
	if req.SrcId, err = int64Param(values, "src_id"); err != nil {
		writeError(w, err)
		return
	}
	if req.DestId, err = int64Param(values, "dest_id"); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.MoveItem(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.MoveResponse{SrcIndex: req.SrcIndex, DestIndex: req.DestIndex})
}

// events upgrades the connection and relays every broadcast payload until the peer disconnects.
func (h *HTTPHandler) events(w http.ResponseWriter, r *http.Request) {
	if h.subscriber == nil {
		writeError(w, fmt.Errorf("%w: events are not configured", model.ErrTransport))
		return
	}

	// Subscribe before the upgrade completes: once the peer is connected no event is missed
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payloadCh, err := h.subscriber.Subscribe(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("HTTP: events: upgrade: %v", err)
		return
	}
	defer ws.Close()

	// Reads are only used to detect the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-payloadCh:
			if !ok {
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("HTTP: events: write: %v", err)
				return
			}
		}
	}
}

// requestValues reads request fields from a JSON or a form-encoded body.
func requestValues(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, model.NewValidationError("form: %v", err)
		}
		return r.Form, nil
	}

	fields := make(map[string]interface{})
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		return nil, model.NewValidationError("json body: %v", err)
	}

	values := make(url.Values, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			values.Set(key, v)
		case json.Number:
			values.Set(key, v.String())
		default:
			return nil, model.NewValidationError("%s: must be a string or a number", key)
		}
	}

	return values, nil
}

func intParam(values url.Values, key string) (int, error) {
	v, err := int64Param(values, key)
	return int(v), err
}

func int64Param(values url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, model.NewValidationError("%s: missing", key)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, model.NewValidationError("%s: not a number: %q", key, raw)
	}

	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("HTTP: response encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrStorage), errors.Is(err, model.ErrTransport):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// logRequests logs every handled request with its status and duration.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Printf("HTTP: %s %s -> %d (%v)", r.Method, r.URL.Path, m.Code, m.Duration)
	})
}

// NewHTTPHandler creates a new HTTPHandler object, subscriber may be nil to disable the events endpoint.
func NewHTTPHandler(svc *ListService, subscriber broadcast.Subscriber) *HTTPHandler {
	h := &HTTPHandler{
		svc:        svc,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		router: mux.NewRouter(),
	}

	h.router.Use(logRequests)
	h.router.Methods(http.MethodGet).Path("/").HandlerFunc(h.health)
	h.router.Methods(http.MethodGet).Path("/users").HandlerFunc(h.listUsers)
	h.router.Methods(http.MethodPost).Path("/add").HandlerFunc(h.addUser)
	h.router.Methods(http.MethodPost).Path("/delete").HandlerFunc(h.removeUser)
	h.router.Methods(http.MethodPost).Path("/move").HandlerFunc(h.moveUser)
	h.router.Methods(http.MethodGet).Path("/events").HandlerFunc(h.events)

	return h
}
