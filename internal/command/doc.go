// Package command applies operator commands received on the message bus.
//
// Commands are JSON objects with a "type" field. EMERGENCY_STOP,
// MAINTENANCE_MODE and RESUME switch the twin's operating mode. SET_SPEED is
// acknowledged and logged only; the twin has no write path to the PLC.
package command
