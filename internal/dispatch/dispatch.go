// Package dispatch entrega códigos OTP por un canal lateral. El transporte
// real (SMTP, gateway de mensajes) es un colaborador externo: acá viven la
// interfaz, el sender SMTP y un sender de log para desarrollo.
package dispatch

import "context"

// Canales soportados.
const (
	ChannelMail    = "mail"
	ChannelMessage = "message"
)

// Delivery es un código listo para entregar.
type Delivery struct {
	Channel     string
	Destination string
	Code        string
}

// Dispatcher entrega un código por su canal. Las implementaciones no
// persisten nada: si Deliver retorna nil, el código salió.
type Dispatcher interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Registry rutea cada canal a su dispatcher.
type Registry struct {
	byChannel map[string]Dispatcher
}

func NewRegistry() *Registry {
	return &Registry{byChannel: make(map[string]Dispatcher)}
}

// Register asocia un canal a un dispatcher (pisa el anterior si existía).
func (r *Registry) Register(channel string, d Dispatcher) {
	r.byChannel[channel] = d
}

// For retorna el dispatcher del canal, o false si no hay ninguno.
func (r *Registry) For(channel string) (Dispatcher, bool) {
	d, ok := r.byChannel[channel]
	return d, ok
}
