package home

// Fixed wattage and assumed daily usage hours per device type. This is a
// linear estimate for the portal's consumption panel, not a metering
// integration.
const (
	LightWatts = 12
	ACWatts    = 1200
	LightHours = 4
	ACHours    = 6
)

// Consumption is the derived power view over a snapshot's devices.
type Consumption struct {
	InstantW   float64 `json:"instant_w"`
	DailyKWh   float64 `json:"daily_kwh"`
	MonthlyKWh float64 `json:"monthly_kwh"`
	LightsOn   int     `json:"lights_on"`
	ACOn       int     `json:"ac_on"`
}

// EstimateConsumption counts powered devices and projects instantaneous,
// daily and 30-day usage from the fixed per-type model.
func EstimateConsumption(devices []Device) Consumption {
	var c Consumption
	for _, d := range devices {
		if !d.IsOn {
			continue
		}
		switch d.Type {
		case DeviceLight:
			c.LightsOn++
		case DeviceAC:
			c.ACOn++
		}
	}
	c.InstantW = float64(c.LightsOn*LightWatts + c.ACOn*ACWatts)
	c.DailyKWh = float64(c.LightsOn*LightWatts*LightHours)/1000 +
		float64(c.ACOn*ACWatts*ACHours)/1000
	c.MonthlyKWh = c.DailyKWh * 30
	return c
}
