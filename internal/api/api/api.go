package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"ticketdesk/cmd/middleware"
	"ticketdesk/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.GET("/tickets", r.Service.ListTickets)
	apiGroup.GET("/tickets/search", r.Service.SearchTickets)
	apiGroup.GET("/tickets/customer/:email", r.Service.TicketsForCustomer)
	apiGroup.GET("/tickets/:id", r.Service.GetTicket)
	apiGroup.GET("/tickets/:id/qrcode", r.Service.TicketQRCode)
	apiGroup.DELETE("/tickets/:id", r.Service.DeleteTicket)
	apiGroup.POST("/tickets/:id/validate", r.Service.ValidateTicket)

	apiGroup.GET("/pending", r.Service.ListPending)
	apiGroup.POST("/pending", r.Service.CreatePending)
	apiGroup.POST("/pending/:id/approve", r.Service.ApprovePending)
	apiGroup.POST("/pending/:id/reject", r.Service.RejectPending)
	apiGroup.DELETE("/pending/:id", r.Service.RejectPending)
	apiGroup.DELETE("/pending/:id/payment-proof", r.Service.ClearPaymentProof)

	apiGroup.GET("/stats", r.Service.Stats)

	return app
}
