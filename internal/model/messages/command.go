// Package messages defines the wire payloads exchanged with devices.
package messages

import "encoding/json"

// Pump/valve wire states. The device protocol predates this service and is
// Spanish on the wire.
const (
	PumpOn      = "encendida"
	PumpOff     = "apagada"
	ValveClosed = "cerrada"
	ValveOpen   = "abierta"
)

// ControlSuffix is appended to a registration's telemetry topic to address
// the device's command input.
const ControlSuffix = "/in"

// ActuationPayload is the body published to <topic>/in.
type ActuationPayload struct {
	Pump  string `json:"bomba"`
	Valve string `json:"valvula"`
}

// ActuationCommand is an ephemeral outbound command; it is never persisted.
type ActuationCommand struct {
	Topic   string
	Payload ActuationPayload
}

// TurnOn builds the window-start command for a registration topic.
func TurnOn(topic string) ActuationCommand {
	return ActuationCommand{
		Topic:   topic + ControlSuffix,
		Payload: ActuationPayload{Pump: PumpOn, Valve: ValveClosed},
	}
}

// TurnOff builds the window-end command for a registration topic.
func TurnOff(topic string) ActuationCommand {
	return ActuationCommand{
		Topic:   topic + ControlSuffix,
		Payload: ActuationPayload{Pump: PumpOff, Valve: ValveOpen},
	}
}

func (c ActuationCommand) Body() []byte {
	b, _ := json.Marshal(c.Payload)
	return b
}
