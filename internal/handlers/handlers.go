package handlers

import (
	"net/http"
	"time"

	"github.com/tariel-x/gomeet/internal/config"
	"github.com/tariel-x/gomeet/internal/directory"
	"github.com/tariel-x/gomeet/internal/invite"
	"github.com/tariel-x/gomeet/internal/meetings"
	"github.com/tariel-x/gomeet/internal/notify"
	"github.com/tariel-x/gomeet/internal/turn"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

type Handlers struct {
	config     *config.Config
	db         *gorm.DB
	meetings   *meetings.Store
	sessions   *invite.Registry
	wsHub      *WSHub
	turnServer *turn.TURNServer
	directory  *directory.Store
	delivery   *notify.Delivery
	wsUpgrader websocket.Upgrader
	nowFn      func() time.Time
}

func New(cfg *config.Config, db *gorm.DB, meetingStore *meetings.Store, sessions *invite.Registry, hub *WSHub, turnServer *turn.TURNServer, directoryStore *directory.Store, delivery *notify.Delivery) *Handlers {
	return &Handlers{
		config:     cfg,
		db:         db,
		meetings:   meetingStore,
		sessions:   sessions,
		wsHub:      hub,
		turnServer: turnServer,
		directory:  directoryStore,
		delivery:   delivery,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		nowFn: time.Now,
	}
}
