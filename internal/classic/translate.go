package classic

// Charge stage codes, high byte of 4120.
const (
	STAGE_RESTING    = 0
	STAGE_ABSORB     = 3
	STAGE_BULK_MPPT  = 4
	STAGE_FLOAT      = 5
	STAGE_FLOAT_MPPT = 6
	STAGE_EQUALIZE   = 7
	STAGE_HYPER_VOC  = 10
	STAGE_EQ_MPPT    = 18
)

var stageWords = map[int]string{
	STAGE_RESTING:    "Sleep",
	STAGE_ABSORB:     "Absorb",
	STAGE_BULK_MPPT:  "Bulk",
	STAGE_FLOAT:      "Float",
	STAGE_FLOAT_MPPT: "Float~", // not holding the float voltage
	STAGE_EQUALIZE:   "EQ",
	STAGE_EQ_MPPT:    "EQ~",
	STAGE_HYPER_VOC:  "HyperVoc",
}

// stages in charging order
var stageLinear = map[int]int{
	STAGE_RESTING:    2,
	STAGE_BULK_MPPT:  3,
	STAGE_ABSORB:     4,
	STAGE_FLOAT:      5,
	STAGE_FLOAT_MPPT: 5,
	STAGE_EQUALIZE:   6,
	STAGE_EQ_MPPT:    6,
	STAGE_HYPER_VOC:  7,
}

var stateWords = map[int]string{
	0: "Resting",
	1: "Waking",
	2: "Waking",
	3: "Active",
	4: "Active",
	6: "Active",
}

var restingReasons = map[int]string{
	1:  "Anti-Click. Not enough power available (Wake Up)",
	2:  "Insane Ibatt Measurement (Wake Up)",
	3:  "Negative Current (load on PV input ?) (Wake Up)",
	4:  "PV Input Voltage lower than Battery V (Vreg state)",
	5:  "Too low of power out and Vbatt below set point for > 90 seconds",
	6:  "FET temperature too high (Cover is on maybe ?)",
	7:  "Ground Fault Detected",
	8:  "Arc Fault Detected",
	9:  "Too much negative current while operating (backfeed from battery out of PV input)",
	10: "Battery is less than 8.0 Volts",
	11: "PV input is available but V is rising too slowly. Low Light or bad connection (Solar mode)",
	12: "Voc has gone down from last Voc or low light. Re-check (Solar mode)",
	13: "Voc has gone up from last Voc enough to be suspicious. Re-check (Solar mode)",
	14: "PV input is available but V is rising too slowly. Low Light or bad connection (Solar mode)",
	15: "Voc has gone down from last Voc or low light. Re-check (Solar mode)",
	16: "Mppt MODE is OFF (Usually because user turned it off)",
	17: "PV input is higher than operation range (too high for 150V Classic)",
	18: "PV input is higher than operation range (too high for 200V Classic)",
	19: "PV input is higher than operation range (too high for 250V or 250KS)",
	22: "Average Battery Voltage is too high above set point",
	25: "Battery Voltage too high of Overshoot (small battery or bad cable ?)",
	26: "Mode changed while running OR Vabsorb raised more than 10.0 Volts at once OR Nominal\nVbatt changed by modbus command AND MpptMode was ON when changed",
	27: "bridge center == 1023 (R132 might have been stuffed) This turns MPPT Mode to OFF",
	28: "NOT Resting but RELAY is not engaged for some reason",
	29: "ON/OFF stays off because WIND GRAPH is illegal (current step is set for > 100 amps)",
	30: "PkAmpsOverLimit... Software detected too high of PEAK output current",
	31: "AD1CH.IbattMinus > 900 Peak negative battery current > 90.0 amps (Classic 250)",
	32: "Aux 2 input commanded Classic off. for HI or LO (Aux2Function == 15 or 16)",
	33: "OCP in a mode other than Solar or PV-Uset",
	34: "AD1CH.IbattMinus > 900 Peak negative battery current > 90.0 amps (Classic 150, 200)",
}

// StageWord names a charge stage, nil for unknown codes.
func StageWord(stage int) any {
	if w, ok := stageWords[stage]; ok {
		return w
	}
	return nil
}

func StageLinear(stage int) any {
	if l, ok := stageLinear[stage]; ok {
		return int64(l)
	}
	return nil
}

func StateWord(state int) any {
	if w, ok := stateWords[state]; ok {
		return w
	}
	return nil
}

func RestingReason(code int) any {
	if r, ok := restingReasons[code]; ok {
		return r
	}
	return nil
}

func RestingReasonShort(code int) string {
	switch code {
	case 2:
		return "Battery Current Re-Calc"
	case 3, 9:
		return "Negative Current"
	case 4:
		return "Input Voltage Lower than Battery Voltage"
	case 6:
		return "FET Temp High"
	case 7:
		return "Ground Fault"
	case 8:
		return "Arc Fault"
	case 10:
		return "Very Low Battery Voltage"
	case 13:
		return "Suspicious Voc jump"
	case 1, 5, 11, 12, 14, 15:
		return "Low Light"
	case 16:
		return "MPPT Mode is OFF"
	case 17, 18, 19:
		return "Input Voltage is too high"
	case 22:
		return "Battery Voltage is too high"
	case 25:
		return "Battery overshoot"
	case 26:
		return "Abrupt Modbus Change"
	case 27:
		return "Bridge Center High R132"
	case 28:
		return "Relay Error"
	case 29:
		return "Reload Wind Curve"
	default:
		return "Unknown"
	}
}
