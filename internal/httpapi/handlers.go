package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pointquest/pointquest-server/internal/registry"
	"github.com/pointquest/pointquest-server/internal/room"
)

// CreateRoom pre-creates a room over plain HTTP and returns the invite
// code, so a share link can exist before the host's websocket is up.
// Joining still happens over the websocket.
func CreateRoom(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		reply := make(chan *room.Room, 1)
		reg.Inbox() <- registry.CreateRoom{RoomName: body.Name, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}
		log.Info("room created over http", zap.String("room", rm.Code()))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: rm.Code()})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
