package fountain

import (
	"strings"
	"sync"

	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
)

// Uninitialized is the placeholder for identity and readable fields that the
// device has not reported yet.
const Uninitialized = "Uninitialized"

// Settings is the smart schedule, LED and do-not-disturb block shared by
// config and full-status responses.
type Settings struct {
	SmartTimeOn                 int    `json:"smart_time_on"`
	SmartTimeOff                int    `json:"smart_time_off"`
	LEDSwitch                   int    `json:"led_switch"`
	LEDBrightness               int    `json:"led_brightness"`
	LEDLightTimeOn              int    `json:"led_light_time_on"`
	LEDLightTimeOnReadable      string `json:"led_light_time_on_readable"`
	LEDLightTimeOff             int    `json:"led_light_time_off"`
	LEDLightTimeOffReadable     string `json:"led_light_time_off_readable"`
	LEDOnByte1                  int    `json:"led_on_byte1"`
	LEDOnByte2                  int    `json:"led_on_byte2"`
	LEDOffByte1                 int    `json:"led_off_byte1"`
	LEDOffByte2                 int    `json:"led_off_byte2"`
	DoNotDisturbSwitch          int    `json:"do_not_disturb_switch"`
	DoNotDisturbTimeOn          int    `json:"do_not_disturb_time_on"`
	DoNotDisturbTimeOnReadable  string `json:"do_not_disturb_time_on_readable"`
	DoNotDisturbTimeOff         int    `json:"do_not_disturb_time_off"`
	DoNotDisturbTimeOffReadable string `json:"do_not_disturb_time_off_readable"`
	DNDOnByte1                  int    `json:"dnd_on_byte1"`
	DNDOnByte2                  int    `json:"dnd_on_byte2"`
	DNDOffByte1                 int    `json:"dnd_off_byte1"`
	DNDOffByte2                 int    `json:"dnd_off_byte2"`
	IsLocked                    int    `json:"is_locked"`
}

// apply sets one settings key. handled is false when key is not a settings key.
func (s *Settings) apply(proj, key string, v any) (handled bool, err error) {
	handled = true
	switch key {
	case "smart_time_on":
		s.SmartTimeOn, err = intField(proj, key, v)
	case "smart_time_off":
		s.SmartTimeOff, err = intField(proj, key, v)
	case "led_switch":
		s.LEDSwitch, err = intField(proj, key, v)
	case "led_brightness":
		s.LEDBrightness, err = intField(proj, key, v)
	case "led_light_time_on":
		s.LEDLightTimeOn, err = intField(proj, key, v)
	case "led_light_time_on_readable":
		s.LEDLightTimeOnReadable, err = stringField(proj, key, v)
	case "led_light_time_off":
		s.LEDLightTimeOff, err = intField(proj, key, v)
	case "led_light_time_off_readable":
		s.LEDLightTimeOffReadable, err = stringField(proj, key, v)
	case "led_on_byte1":
		s.LEDOnByte1, err = intField(proj, key, v)
	case "led_on_byte2":
		s.LEDOnByte2, err = intField(proj, key, v)
	case "led_off_byte1":
		s.LEDOffByte1, err = intField(proj, key, v)
	case "led_off_byte2":
		s.LEDOffByte2, err = intField(proj, key, v)
	case "do_not_disturb_switch":
		s.DoNotDisturbSwitch, err = intField(proj, key, v)
	case "do_not_disturb_time_on":
		s.DoNotDisturbTimeOn, err = intField(proj, key, v)
	case "do_not_disturb_time_on_readable":
		s.DoNotDisturbTimeOnReadable, err = stringField(proj, key, v)
	case "do_not_disturb_time_off":
		s.DoNotDisturbTimeOff, err = intField(proj, key, v)
	case "do_not_disturb_time_off_readable":
		s.DoNotDisturbTimeOffReadable, err = stringField(proj, key, v)
	case "dnd_on_byte1":
		s.DNDOnByte1, err = intField(proj, key, v)
	case "dnd_on_byte2":
		s.DNDOnByte2, err = intField(proj, key, v)
	case "dnd_off_byte1":
		s.DNDOffByte1, err = intField(proj, key, v)
	case "dnd_off_byte2":
		s.DNDOffByte2, err = intField(proj, key, v)
	case "is_locked":
		s.IsLocked, err = intField(proj, key, v)
	default:
		handled = false
	}
	return handled, err
}

// Status is the telemetry projection. It embeds the settings block because
// config and full-status responses report both.
type Status struct {
	Voltage                  float64 `json:"voltage"`
	Battery                  int     `json:"battery"`
	RSSI                     int     `json:"rssi"`
	MACReadable              string  `json:"mac_readable"`
	NameReadable             string  `json:"name_readable"`
	PowerStatus              int     `json:"power_status"`
	Mode                     int     `json:"mode"`
	DNDState                 int     `json:"dnd_state"`
	WarningBreakdown         int     `json:"warning_breakdown"`
	WarningWaterMissing      int     `json:"warning_water_missing"`
	WarningFilter            int     `json:"warning_filter"`
	PumpRuntime              int     `json:"pump_runtime"`
	PumpRuntimeToday         int     `json:"pump_runtime_today"`
	PumpRuntimeReadable      string  `json:"pump_runtime_readable"`
	PumpRuntimeTodayReadable string  `json:"pump_runtime_today_readable"`
	FilterPercentage         float64 `json:"filter_percentage"`
	FilterTimeLeft           int     `json:"filter_time_left"`
	PurifiedWater            float64 `json:"purified_water"`
	PurifiedWaterToday       float64 `json:"purified_water_today"`
	EnergyConsumed           string  `json:"energy_consumed"`
	RunningStatus            int     `json:"running_status"`
	Settings
}

func (s *Status) apply(key string, v any) error {
	const proj = "status"
	var err error
	switch key {
	case "voltage":
		s.Voltage, err = floatField(proj, key, v)
	case "battery":
		s.Battery, err = intField(proj, key, v)
	case "rssi":
		s.RSSI, err = intField(proj, key, v)
	case "mac_readable":
		s.MACReadable, err = stringField(proj, key, v)
	case "name_readable":
		s.NameReadable, err = stringField(proj, key, v)
	case "power_status":
		s.PowerStatus, err = intField(proj, key, v)
	case "mode":
		s.Mode, err = intField(proj, key, v)
	case "dnd_state":
		s.DNDState, err = intField(proj, key, v)
	case "warning_breakdown":
		s.WarningBreakdown, err = intField(proj, key, v)
	case "warning_water_missing":
		s.WarningWaterMissing, err = intField(proj, key, v)
	case "warning_filter":
		s.WarningFilter, err = intField(proj, key, v)
	case "pump_runtime":
		s.PumpRuntime, err = intField(proj, key, v)
	case "pump_runtime_today":
		s.PumpRuntimeToday, err = intField(proj, key, v)
	case "pump_runtime_readable":
		s.PumpRuntimeReadable, err = stringField(proj, key, v)
	case "pump_runtime_today_readable":
		s.PumpRuntimeTodayReadable, err = stringField(proj, key, v)
	case "filter_percentage":
		s.FilterPercentage, err = floatField(proj, key, v)
	case "filter_time_left":
		s.FilterTimeLeft, err = intField(proj, key, v)
	case "purified_water":
		s.PurifiedWater, err = floatField(proj, key, v)
	case "purified_water_today":
		s.PurifiedWaterToday, err = floatField(proj, key, v)
	case "energy_consumed":
		s.EnergyConsumed, err = stringField(proj, key, v)
	case "running_status":
		s.RunningStatus, err = intField(proj, key, v)
	default:
		handled, serr := s.Settings.apply(proj, key, v)
		if !handled {
			return &UnknownFieldError{Projection: proj, Key: key}
		}
		err = serr
	}
	return err
}

// Config is the 14-byte persisted settings block written with cmd 221.
type Config struct {
	SmartTimeOn        int `json:"smart_time_on"`
	SmartTimeOff       int `json:"smart_time_off"`
	LEDSwitch          int `json:"led_switch"`
	LEDBrightness      int `json:"led_brightness"`
	LEDOnByte1         int `json:"led_on_byte1"`
	LEDOnByte2         int `json:"led_on_byte2"`
	LEDOffByte1        int `json:"led_off_byte1"`
	LEDOffByte2        int `json:"led_off_byte2"`
	DoNotDisturbSwitch int `json:"do_not_disturb_switch"`
	DNDOnByte1         int `json:"dnd_on_byte1"`
	DNDOnByte2         int `json:"dnd_on_byte2"`
	DNDOffByte1        int `json:"dnd_off_byte1"`
	DNDOffByte2        int `json:"dnd_off_byte2"`
	IsLocked           int `json:"is_locked"`
}

// Bytes returns c in wire order.
func (c Config) Bytes() [protocol.ConfigLen]byte {
	return [protocol.ConfigLen]byte{
		byte(c.SmartTimeOn), byte(c.SmartTimeOff),
		byte(c.LEDSwitch), byte(c.LEDBrightness),
		byte(c.LEDOnByte1), byte(c.LEDOnByte2),
		byte(c.LEDOffByte1), byte(c.LEDOffByte2),
		byte(c.DoNotDisturbSwitch),
		byte(c.DNDOnByte1), byte(c.DNDOnByte2),
		byte(c.DNDOffByte1), byte(c.DNDOffByte2),
		byte(c.IsLocked),
	}
}

func configOf(s Settings) Config {
	return Config{
		SmartTimeOn:        s.SmartTimeOn,
		SmartTimeOff:       s.SmartTimeOff,
		LEDSwitch:          s.LEDSwitch,
		LEDBrightness:      s.LEDBrightness,
		LEDOnByte1:         s.LEDOnByte1,
		LEDOnByte2:         s.LEDOnByte2,
		LEDOffByte1:        s.LEDOffByte1,
		LEDOffByte2:        s.LEDOffByte2,
		DoNotDisturbSwitch: s.DoNotDisturbSwitch,
		DNDOnByte1:         s.DNDOnByte1,
		DNDOnByte2:         s.DNDOnByte2,
		DNDOffByte1:        s.DNDOffByte1,
		DNDOffByte2:        s.DNDOffByte2,
		IsLocked:           s.IsLocked,
	}
}

func isConfigKey(key string) bool {
	switch key {
	case "smart_time_on", "smart_time_off", "led_switch", "led_brightness",
		"led_on_byte1", "led_on_byte2", "led_off_byte1", "led_off_byte2",
		"do_not_disturb_switch", "dnd_on_byte1", "dnd_on_byte2",
		"dnd_off_byte1", "dnd_off_byte2", "is_locked":
		return true
	}
	return false
}

// Info is the identity projection.
type Info struct {
	MAC               string  `json:"mac"`
	MACReadable       string  `json:"mac_readable"`
	Name              string  `json:"name"`
	NameReadable      string  `json:"name_readable"`
	ProductName       string  `json:"product_name"`
	Alias             string  `json:"alias"`
	DeviceType        int     `json:"device_type"`
	TypeCode          int     `json:"type_code"`
	Firmware          float64 `json:"firmware"`
	DeviceInitialized int     `json:"device_initialized"`
	DeviceID          uint64  `json:"device_id"`
	DeviceIDBytes     []byte  `json:"device_id_bytes"`
	Serial            string  `json:"serial"`
}

func (i *Info) apply(key string, v any) error {
	const proj = "info"
	var err error
	switch key {
	case "mac":
		i.MAC, err = stringField(proj, key, v)
	case "mac_readable":
		i.MACReadable, err = stringField(proj, key, v)
	case "name":
		i.Name, err = stringField(proj, key, v)
	case "name_readable":
		i.NameReadable, err = stringField(proj, key, v)
	case "product_name":
		i.ProductName, err = stringField(proj, key, v)
	case "alias":
		i.Alias, err = stringField(proj, key, v)
	case "device_type":
		i.DeviceType, err = intField(proj, key, v)
	case "type_code":
		i.TypeCode, err = intField(proj, key, v)
	case "firmware":
		i.Firmware, err = floatField(proj, key, v)
	case "device_initialized":
		i.DeviceInitialized, err = intField(proj, key, v)
	case "device_id":
		i.DeviceID, err = uint64Field(proj, key, v)
	case "device_id_bytes":
		i.DeviceIDBytes, err = bytesField(proj, key, v)
	case "serial":
		i.Serial, err = stringField(proj, key, v)
	default:
		return &UnknownFieldError{Projection: proj, Key: key}
	}
	return err
}

func (i Info) clone() Info {
	i.DeviceIDBytes = append([]byte(nil), i.DeviceIDBytes...)
	return i
}

// HasSerial reports whether the device has reported a real serial number.
func (i Info) HasSerial() bool {
	return i.Serial != "" && i.Serial != Uninitialized && strings.Trim(i.Serial, "\x00") != ""
}

// State is the in-memory model of one fountain. Updates go through the
// Set methods, which accept only known keys and apply all-or-nothing.
type State struct {
	mu     sync.RWMutex
	status Status
	info   Info
}

// NewState creates the state for the fountain at mac with placeholder
// identity.
func NewState(mac string) *State {
	readable := strings.ReplaceAll(mac, ":", "")
	return &State{
		status: Status{
			MACReadable:  readable,
			NameReadable: Uninitialized,
			Settings: Settings{
				LEDLightTimeOnReadable:      Uninitialized,
				LEDLightTimeOffReadable:     Uninitialized,
				DoNotDisturbTimeOnReadable:  Uninitialized,
				DoNotDisturbTimeOffReadable: Uninitialized,
			},
		},
		info: Info{
			MAC:           mac,
			MACReadable:   readable,
			Name:          Uninitialized,
			NameReadable:  Uninitialized,
			ProductName:   Uninitialized,
			Alias:         Uninitialized,
			DeviceIDBytes: []byte{},
			Serial:        Uninitialized,
		},
	}
}

// Status returns a snapshot of the telemetry projection.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Config returns a snapshot of the persisted settings.
func (s *State) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return configOf(s.status.Settings)
}

// ConfigBytes returns the current settings in cmd 221 layout.
func (s *State) ConfigBytes() [protocol.ConfigLen]byte {
	return s.Config().Bytes()
}

// Info returns a snapshot of the identity projection.
func (s *State) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.clone()
}

// SetStatus applies telemetry and settings fields.
func (s *State) SetStatus(f protocol.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.status
	for k, v := range f {
		if err := next.apply(k, v); err != nil {
			return err
		}
	}
	s.status = next
	return nil
}

// SetConfig applies the 14 persisted settings keys.
func (s *State) SetConfig(f protocol.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.status.Settings
	for k, v := range f {
		if !isConfigKey(k) {
			return &UnknownFieldError{Projection: "config", Key: k}
		}
		if _, err := next.apply("config", k, v); err != nil {
			return err
		}
	}
	s.status.Settings = next
	return nil
}

// SetInfo applies identity fields.
func (s *State) SetInfo(f protocol.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.info.clone()
	for k, v := range f {
		if err := next.apply(k, v); err != nil {
			return err
		}
	}
	s.info = next
	return nil
}
