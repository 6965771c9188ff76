package eonsim

import (
	"fmt"
	"math"
	"strings"
)

// Modulation identifies the modulation format of an elastic lightpath
type Modulation int

const (
	BPSK Modulation = iota
	QPSK
	QAM8
	QAM16
	QAM32
	QAM64
)

var modToStr map[Modulation]string = map[Modulation]string{BPSK: "BPSK", QPSK: "QPSK", QAM8: "8QAM",
	QAM16: "16QAM", QAM32: "32QAM", QAM64: "64QAM"}

// reach in km and the SNR (dB) a channel needs for each format
var modReach map[Modulation]float64 = map[Modulation]float64{BPSK: 9600, QPSK: 4800, QAM8: 2400,
	QAM16: 1200, QAM32: 600, QAM64: 300}

var modSNR map[Modulation]float64 = map[Modulation]float64{BPSK: 6.8, QPSK: 9.8, QAM8: 13.8,
	QAM16: 16.5, QAM32: 19.6, QAM64: 22.5}

func (m Modulation) String() string {
	str, present := modToStr[m]
	if !present {
		return fmt.Sprintf("Modulation(%d)", int(m))
	}
	return str
}

// ParseModulation is the inverse of String, case insensitive
func ParseModulation(name string) (Modulation, error) {
	for mod, str := range modToStr {
		if strings.EqualFold(str, name) {
			return mod, nil
		}
	}
	return BPSK, fmt.Errorf("unknown modulation %q", name)
}

// BitsPerSymbol of the format
func (m Modulation) BitsPerSymbol() int {
	return int(m) + 1
}

// Reach is the transparent distance (km) the format tolerates
func (m Modulation) Reach() float64 {
	return modReach[m]
}

// SNRThreshold is the minimum SNR (dB) the format needs
// SNRThreshold is the SNR (dB) a channel needs under the format
func (m Modulation) SNRThreshold() float64 {
	return modSNR[m]
}

// SlotCapacity is the rate (Mbps) carried by one slot of slotSize GHz
func (m Modulation) SlotCapacity(slotSize float64) int {
	return int(math.Floor(slotSize * float64(m.BitsPerSymbol()) * 1000.0))
}

// RequiredSlots is the number of slots of slotSize GHz a rate (Mbps) needs under the format
func (m Modulation) RequiredSlots(rate int, slotSize float64) int {
	perSlot := m.SlotCapacity(slotSize)
	if perSlot < 1 {
		panic(fmt.Errorf("slot size %f carries nothing under %s", slotSize, m))
	}
	return (rate + perSlot - 1) / perSlot
}

// BestModulation returns the densest format whose reach covers distance, and
// false when even BPSK cannot reach
func BestModulation(distance float64) (Modulation, bool) {
	for mod := QAM64; mod >= BPSK; mod-- {
		if distance <= mod.Reach() {
			return mod, true
		}
	}
	return BPSK, false
}
