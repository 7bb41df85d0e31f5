package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"flashquiz-service/internal/app"
	"flashquiz-service/internal/game"
	"flashquiz-service/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSHandler binds websocket connections to game sessions. Participants send
// the participant catalogue (JOIN_REQUEST, SUBMIT_ANSWER); the host connection
// additionally drives the lifecycle with control commands. Everything inbound
// is funneled into the session's inbox, so the handler itself holds no game
// state.
type WSHandler struct {
	service  *app.HostService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.HostService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// CreateGame allocates a new lobby and returns its PIN.
func (h *WSHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pin, err := h.service.CreateGame()
	if err != nil {
		http.Error(w, "failed to create game", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		PIN string `json:"pin"`
	}{PIN: pin})
}

// ServeWS upgrades the connection and wires it into the session behind the
// requested PIN. role=host marks the authoritative connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin == "" {
		http.Error(w, "missing pin", http.StatusBadRequest)
		return
	}
	isHost := r.URL.Query().Get("role") == "host"

	session, err := h.service.Get(pin)
	if err != nil {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	out := make(chan protocol.Envelope, 16)
	if !session.Send(game.Attach{ClientID: clientID, Outbox: out, Host: isHost}) {
		return
	}
	defer session.Send(game.Detach{ClientID: clientID})

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case env := <-out:
				if err := conn.WriteJSON(env); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if isHost {
			if h.handleHost(r.Context(), pin, env, out) {
				return
			}
			continue
		}
		switch env.Type {
		case protocol.TypeJoinRequest, protocol.TypeSubmitAnswer:
			session.Send(game.FromClient{Env: env})
		default:
			// Participants may only join and answer; everything else is
			// dropped, matching the forward-compatible protocol rules.
		}
	}
}

// handleHost executes a host control command, reporting failures back on the
// host's own outbox. It returns true when the connection should close.
func (h *WSHandler) handleHost(ctx context.Context, pin string, env protocol.Envelope, out chan protocol.Envelope) bool {
	switch env.Type {
	case protocol.TypeStartGame:
		h.replyErr(out, h.service.StartGame(pin))

	case protocol.TypeAdvance:
		h.replyErr(out, h.service.Advance(pin))

	case protocol.TypeGenerate:
		var gen protocol.Generate
		if err := protocol.Decode(env, &gen); err != nil {
			h.replyErr(out, err)
			return false
		}
		h.replyErr(out, h.service.GenerateQuestions(ctx, pin, gen.Topic, gen.Count))

	case protocol.TypeAddQuestion:
		var add protocol.AddQuestion
		if err := protocol.Decode(env, &add); err != nil {
			h.replyErr(out, err)
			return false
		}
		h.replyErr(out, h.service.AddQuestion(pin, add.Question))

	case protocol.TypeKickPlayer:
		var kick protocol.KickPlayer
		if err := protocol.Decode(env, &kick); err != nil {
			h.replyErr(out, err)
			return false
		}
		h.replyErr(out, h.service.KickPlayer(pin, kick.PlayerID))

	case protocol.TypeEndGame:
		h.service.EndGame(pin)
		return true
	}
	return false
}

func (h *WSHandler) replyErr(out chan protocol.Envelope, err error) {
	if err == nil {
		return
	}
	select {
	case out <- protocol.MustEncode(protocol.TypeError, protocol.Error{Message: err.Error()}):
	default:
	}
}
