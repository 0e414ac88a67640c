package safety

// SafeZone defines the operational boundaries for one RAN parameter
// (spec §4.3): absolute_min/max are hard protocol/hardware limits,
// safe_min/max are the recommended operating range, change_limit_percent
// bounds a single adjustment's magnitude, and cooldown_seconds is the
// minimum time between adjustments to the same parameter.
type SafeZone struct {
	AbsoluteMin        float32
	AbsoluteMax        float32
	SafeMin            float32
	SafeMax            float32
	ChangeLimitPercent float32
	CooldownSeconds    uint64
}

// WithinAbsoluteBounds reports whether value falls within [AbsoluteMin, AbsoluteMax].
func (z SafeZone) WithinAbsoluteBounds(value float32) bool {
	return value >= z.AbsoluteMin && value <= z.AbsoluteMax
}

// WithinSafeBounds reports whether value falls within [SafeMin, SafeMax].
func (z SafeZone) WithinSafeBounds(value float32) bool {
	return value >= z.SafeMin && value <= z.SafeMax
}

// MaxAllowedChange returns the largest absolute delta permitted from
// currentValue in a single adjustment.
func (z SafeZone) MaxAllowedChange(currentValue float32) float32 {
	return abs32(currentValue) * (z.ChangeLimitPercent / 100.0)
}

// ChangeWithinLimit reports whether moving from oldValue to newValue stays
// within ChangeLimitPercent of oldValue's magnitude.
func (z SafeZone) ChangeWithinLimit(oldValue, newValue float32) bool {
	changePct := abs32(newValue-oldValue) / abs32(oldValue) * 100.0
	return changePct <= z.ChangeLimitPercent
}

// ClampToAbsolute clamps value into [AbsoluteMin, AbsoluteMax].
func (z SafeZone) ClampToAbsolute(value float32) float32 {
	return clamp32(value, z.AbsoluteMin, z.AbsoluteMax)
}

// ClampToSafe clamps value into [SafeMin, SafeMax].
func (z SafeZone) ClampToSafe(value float32) float32 {
	return clamp32(value, z.SafeMin, z.SafeMax)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp32(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// embeddedConstraints is the build-time RAN parameter catalog, carried
// over from the hardcoded constraint table this system was distilled
// from. It covers load balancing, dual-carrier activation, MIMO/cell
// sleep, micro sleep Tx, energy saving, handover, ANR, MRO, CCO, QoS,
// DRX, paging, ICIC and carrier aggregation feature domains.
var embeddedConstraints = map[string]SafeZone{
	"lbActivationThreshold":     {AbsoluteMin: 10.0, AbsoluteMax: 100.0, SafeMin: 50.0, SafeMax: 90.0, ChangeLimitPercent: 15.0, CooldownSeconds: 3600},
	"lbTpNonQualFraction":       {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 50.0, ChangeLimitPercent: 20.0, CooldownSeconds: 1800},
	"lbMinLoadOffset":           {AbsoluteMin: -20.0, AbsoluteMax: 20.0, SafeMin: -10.0, SafeMax: 10.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"lbMaxLoadOffset":           {AbsoluteMin: -20.0, AbsoluteMax: 20.0, SafeMin: -10.0, SafeMax: 10.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"lbLoadOffsetStep":          {AbsoluteMin: 1.0, AbsoluteMax: 10.0, SafeMin: 2.0, SafeMax: 5.0, ChangeLimitPercent: 5.0, CooldownSeconds: 600},
	"lbHighUlnThresh":           {AbsoluteMin: 50.0, AbsoluteMax: 100.0, SafeMin: 60.0, SafeMax: 85.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"lbLowUlnThresh":            {AbsoluteMin: 0.0, AbsoluteMax: 50.0, SafeMin: 10.0, SafeMax: 40.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"duacCarrierActivation":     {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 3600},
	"duacDeactivationThreshold": {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 10.0, SafeMax: 50.0, ChangeLimitPercent: 15.0, CooldownSeconds: 1800},
	"duacMinDlPower":            {AbsoluteMin: -30.0, AbsoluteMax: 0.0, SafeMin: -20.0, SafeMax: -5.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"duacMaxUlPower":            {AbsoluteMin: -50.0, AbsoluteMax: 23.0, SafeMin: -30.0, SafeMax: 15.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"duacMinUlInterference":     {AbsoluteMin: -120.0, AbsoluteMax: -60.0, SafeMin: -110.0, SafeMax: -80.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"duacMaxUlInterference":     {AbsoluteMin: -120.0, AbsoluteMax: -60.0, SafeMin: -110.0, SafeMax: -80.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"mimoSleepMode":             {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"mimoSleepThreshold":        {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 30.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"mimoWakeThreshold":         {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 10.0, SafeMax: 50.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"mimoMinActiveTime":         {AbsoluteMin: 0.0, AbsoluteMax: 3600.0, SafeMin: 60.0, SafeMax: 600.0, ChangeLimitPercent: 15.0, CooldownSeconds: 3600},
	"mimoMinSleepTime":          {AbsoluteMin: 0.0, AbsoluteMax: 3600.0, SafeMin: 60.0, SafeMax: 600.0, ChangeLimitPercent: 15.0, CooldownSeconds: 3600},
	"mimoActiveTimeHysteresis":  {AbsoluteMin: 0.0, AbsoluteMax: 300.0, SafeMin: 10.0, SafeMax: 60.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"mimoSleepTimeHysteresis":   {AbsoluteMin: 0.0, AbsoluteMax: 300.0, SafeMin: 10.0, SafeMax: 60.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"cellSleepMode":             {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"cellSleepThreshold":        {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 2.0, SafeMax: 20.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"cellWakeThreshold":         {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 40.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"cellMinActiveTime":         {AbsoluteMin: 0.0, AbsoluteMax: 3600.0, SafeMin: 60.0, SafeMax: 600.0, ChangeLimitPercent: 15.0, CooldownSeconds: 3600},
	"cellMinSleepTime":          {AbsoluteMin: 0.0, AbsoluteMax: 3600.0, SafeMin: 60.0, SafeMax: 600.0, ChangeLimitPercent: 15.0, CooldownSeconds: 3600},
	"microSleepTxMode":          {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"microSleepTxThreshold":     {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 1.0, SafeMax: 15.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"microSleepTxDutyCycle":     {AbsoluteMin: 0.0, AbsoluteMax: 50.0, SafeMin: 1.0, SafeMax: 20.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"microSleepTxMinOnTime":     {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 30.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"microSleepTxMinOffTime":    {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 30.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"energySavingMode":          {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"energySavingLevel":         {AbsoluteMin: 0.0, AbsoluteMax: 4.0, SafeMin: 1.0, SafeMax: 3.0, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"energySavingThreshold":     {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 40.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"hoA3Offset":                {AbsoluteMin: -10.0, AbsoluteMax: 10.0, SafeMin: -3.0, SafeMax: 3.0, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"hoHysteresis":              {AbsoluteMin: 0.0, AbsoluteMax: 10.0, SafeMin: 1.0, SafeMax: 3.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"hoTriggerTime":             {AbsoluteMin: 0.0, AbsoluteMax: 5000.0, SafeMin: 40.0, SafeMax: 640.0, ChangeLimitPercent: 15.0, CooldownSeconds: 1800},
	"hoMaxHoCount":              {AbsoluteMin: 1.0, AbsoluteMax: 50.0, SafeMin: 5.0, SafeMax: 20.0, ChangeLimitPercent: 10.0, CooldownSeconds: 3600},
	"hoMinHoTime":                {AbsoluteMin: 0.0, AbsoluteMax: 60.0, SafeMin: 1.0, SafeMax: 10.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"anrMode":                  {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"anrAddThreshold":          {AbsoluteMin: -140.0, AbsoluteMax: -60.0, SafeMin: -120.0, SafeMax: -80.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"anrRemoveThreshold":       {AbsoluteMin: -140.0, AbsoluteMax: -60.0, SafeMin: -120.0, SafeMax: -80.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"anrHysteresis":            {AbsoluteMin: 0.0, AbsoluteMax: 10.0, SafeMin: 2.0, SafeMax: 5.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"anrMinNoOfSamples":        {AbsoluteMin: 1.0, AbsoluteMax: 1000.0, SafeMin: 10.0, SafeMax: 100.0, ChangeLimitPercent: 15.0, CooldownSeconds: 3600},
	"mroMode":                  {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"mroHoTooEarlyInd":         {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 30.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"mroHoTooLateInd":          {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 30.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"mroPingPongInd":           {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 5.0, SafeMax: 30.0, ChangeLimitPercent: 10.0, CooldownSeconds: 900},
	"ccoMode":                  {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"ccoMinTilt":                {AbsoluteMin: 0.0, AbsoluteMax: 15.0, SafeMin: 2.0, SafeMax: 10.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"ccoMaxTilt":                {AbsoluteMin: 0.0, AbsoluteMax: 15.0, SafeMin: 2.0, SafeMax: 10.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"ccoTiltStep":               {AbsoluteMin: 0.5, AbsoluteMax: 2.0, SafeMin: 0.5, SafeMax: 1.0, ChangeLimitPercent: 5.0, CooldownSeconds: 900},
	"ccoMinTxPower":            {AbsoluteMin: 0.0, AbsoluteMax: 50.0, SafeMin: 10.0, SafeMax: 40.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"ccoMaxTxPower":            {AbsoluteMin: 0.0, AbsoluteMax: 50.0, SafeMin: 10.0, SafeMax: 40.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"ccoTxPowerStep":           {AbsoluteMin: 1.0, AbsoluteMax: 5.0, SafeMin: 1.0, SafeMax: 3.0, ChangeLimitPercent: 5.0, CooldownSeconds: 900},
	"qosMbrDl":                 {AbsoluteMin: 0.0, AbsoluteMax: 1000000.0, SafeMin: 1000.0, SafeMax: 100000.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"qosMbrUl":                 {AbsoluteMin: 0.0, AbsoluteMax: 1000000.0, SafeMin: 1000.0, SafeMax: 100000.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"qosGbrDl":                 {AbsoluteMin: 0.0, AbsoluteMax: 1000000.0, SafeMin: 100.0, SafeMax: 10000.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"qosGbrUl":                 {AbsoluteMin: 0.0, AbsoluteMax: 1000000.0, SafeMin: 100.0, SafeMax: 10000.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"qosAmp":                   {AbsoluteMin: 0.0, AbsoluteMax: 10.0, SafeMin: 1.0, SafeMax: 5.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"drxEnabled":               {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"drxOnDurationTimer":       {AbsoluteMin: 1.0, AbsoluteMax: 200.0, SafeMin: 10.0, SafeMax: 50.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"drxInactivityTimer":       {AbsoluteMin: 0.0, AbsoluteMax: 2560.0, SafeMin: 50.0, SafeMax: 500.0, ChangeLimitPercent: 15.0, CooldownSeconds: 1800},
	"drxRetxTimer":             {AbsoluteMin: 0.0, AbsoluteMax: 200.0, SafeMin: 10.0, SafeMax: 60.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"drxCycle":                 {AbsoluteMin: 10.0, AbsoluteMax: 1024.0, SafeMin: 40.0, SafeMax: 512.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"drxShortCycle":            {AbsoluteMin: 10.0, AbsoluteMax: 640.0, SafeMin: 20.0, SafeMax: 256.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"drxLongCycleOffset":       {AbsoluteMin: 0.0, AbsoluteMax: 1024.0, SafeMin: 10.0, SafeMax: 256.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"pagingDrxCycle":           {AbsoluteMin: 32.0, AbsoluteMax: 256.0, SafeMin: 64.0, SafeMax: 128.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"pagingNb":                 {AbsoluteMin: 1.0, AbsoluteMax: 4.0, SafeMin: 1.0, SafeMax: 2.0, ChangeLimitPercent: 5.0, CooldownSeconds: 900},
	"pagingTmsi":               {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"icicEnabled":              {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"icicFwpRatio":             {AbsoluteMin: 0.0, AbsoluteMax: 100.0, SafeMin: 10.0, SafeMax: 50.0, ChangeLimitPercent: 15.0, CooldownSeconds: 1800},
	"icicFwpOffset":            {AbsoluteMin: -10.0, AbsoluteMax: 10.0, SafeMin: -3.0, SafeMax: 3.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"icicAbsEnabled":           {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 1800},
	"icicAbsPattern":           {AbsoluteMin: 0.0, AbsoluteMax: 15.0, SafeMin: 1.0, SafeMax: 7.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"caEnabled":                {AbsoluteMin: 0.0, AbsoluteMax: 1.0, SafeMin: 0.1, SafeMax: 0.9, ChangeLimitPercent: 5.0, CooldownSeconds: 3600},
	"caPrimaryScell":           {AbsoluteMin: 0.0, AbsoluteMax: 7.0, SafeMin: 0.0, SafeMax: 3.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"caSecondaryScell":         {AbsoluteMin: 0.0, AbsoluteMax: 31.0, SafeMin: 0.0, SafeMax: 15.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"caReleaseThreshold":       {AbsoluteMin: -10.0, AbsoluteMax: 10.0, SafeMin: -5.0, SafeMax: 0.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
	"caActivationThreshold":    {AbsoluteMin: -10.0, AbsoluteMax: 10.0, SafeMin: -3.0, SafeMax: 3.0, ChangeLimitPercent: 10.0, CooldownSeconds: 1800},
}

// getHardcodedConstraint looks up a build-time embedded constraint by
// parameter name.
func getHardcodedConstraint(paramName string) (SafeZone, bool) {
	z, ok := embeddedConstraints[paramName]
	return z, ok
}
