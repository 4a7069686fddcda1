package controller

import (
	"github.com/snapbooth/server/internal/protocol"
	"github.com/snapbooth/server/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Use(c.wsRequestIdWSMw())
	mux.Use(c.loggerWSMw())
	mux.SetErrorHandler(c.writeError)

	// lifecycle
	wsrouter.Handle(mux, protocol.TypeLeave, c.handleLeave)
	wsrouter.Handle(mux, protocol.TypePing, c.handlePing)

	// peer negotiation relay
	wsrouter.Handle(mux, protocol.TypeOffer, c.handleOffer)
	wsrouter.Handle(mux, protocol.TypeAnswer, c.handleAnswer)
	wsrouter.Handle(mux, protocol.TypeIce, c.handleIce)

	// capture cycle
	wsrouter.Handle(mux, protocol.TypeStartCapture, c.handleStartCapture)
	wsrouter.Handle(mux, protocol.TypePhotoUploaded, c.handlePhotoUploaded)

	// host settings
	wsrouter.Handle(mux, protocol.TypeHostSettingsSync, c.handleHostSettingsSync)

	return mux
}
