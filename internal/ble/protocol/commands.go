package protocol

// Command codes understood by Petkit fountains.
const (
	CmdBattery     byte = 66
	CmdInit        byte = 73
	CmdSetDatetime byte = 84
	CmdSync        byte = 86
	CmdFirmware    byte = 200
	CmdDeviceType  byte = 201
	CmdState       byte = 210
	CmdConfig      byte = 211
	CmdDetails     byte = 213
	CmdSetMode     byte = 220
	CmdSetConfig   byte = 221
	CmdResetFilter byte = 222
	CmdUpdate      byte = 230
)

// Operating modes.
const (
	ModeNormal = 1
	ModeSmart  = 2
)

// Power states.
const (
	PowerOff = 0
	PowerOn  = 1
)

// ConfigLen is the size of the settings block carried by cmd 211 and 221.
const ConfigLen = 14

// CommandName returns a short label for logging.
func CommandName(cmd byte) string {
	switch cmd {
	case CmdBattery:
		return "battery"
	case CmdInit:
		return "init"
	case CmdSetDatetime:
		return "set_datetime"
	case CmdSync:
		return "sync"
	case CmdFirmware:
		return "firmware"
	case CmdDeviceType:
		return "device_type"
	case CmdState:
		return "state"
	case CmdConfig:
		return "config"
	case CmdDetails:
		return "details"
	case CmdSetMode:
		return "set_mode"
	case CmdSetConfig:
		return "set_config"
	case CmdResetFilter:
		return "reset_filter"
	case CmdUpdate:
		return "update"
	default:
		return "unknown"
	}
}
