package ocpp

import (
	"strconv"
	"strings"
	"time"
)

// Reading is the latest instantaneous power (W) and energy register (Wh)
// found in a set of meter values. Nil means the measurand was not reported.
type Reading struct {
	Power  *float64
	Energy *float64
}

// LatestReading scans meterValues for Power.Active.Import and
// Energy.Active.Import.Register. The sample with the newest timestamp wins;
// among equal timestamps the later one wins. kW and kWh are scaled to W and
// Wh. Values that do not parse as numbers are skipped.
func LatestReading(meterValues []MeterValue) Reading {
	var (
		r                     Reading
		powerAt, energyAt     time.Time
		havePower, haveEnergy bool
	)
	for _, mv := range meterValues {
		var at time.Time
		if mv.Timestamp != nil {
			at = mv.Timestamp.Time
		}
		for _, sv := range mv.SampledValue {
			switch sv.Measurand {
			case MeasurandPowerActiveImport:
				if havePower && at.Before(powerAt) {
					continue
				}
				if v, ok := parseScaled(sv.Value, sv.Unit, "kW"); ok {
					r.Power, powerAt, havePower = &v, at, true
				}
			case MeasurandEnergyActiveImportRegister, "":
				// An omitted measurand defaults to the energy register.
				if haveEnergy && at.Before(energyAt) {
					continue
				}
				if v, ok := parseScaled(sv.Value, sv.Unit, "kWh"); ok {
					r.Energy, energyAt, haveEnergy = &v, at, true
				}
			}
		}
	}
	return r
}

func parseScaled(value, unit, kiloUnit string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(unit, kiloUnit) {
		v *= 1000
	}
	return v, true
}
