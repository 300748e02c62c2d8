package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/trajectory.replay/internal/trajlog"
)

// Asset type codes written by the traffic simulator exports.
const (
	None             trajlog.EntityType = 0
	MalePedestrian   trajlog.EntityType = 1
	FemalePedestrian trajlog.EntityType = 2
	Pedestrian       trajlog.EntityType = 3
	Cyclist          trajlog.EntityType = 10
	Car1             trajlog.EntityType = 20
	Car2             trajlog.EntityType = 21
	Motorbike        trajlog.EntityType = 22
	Taxi             trajlog.EntityType = 23
	HGV              trajlog.EntityType = 30
	Minivan          trajlog.EntityType = 31
	Bus              trajlog.EntityType = 32
	BusSBS           trajlog.EntityType = 33
)

var typeNames = map[trajlog.EntityType]string{
	None:             "None",
	MalePedestrian:   "MalePedestrian",
	FemalePedestrian: "FemalePedestrian",
	Pedestrian:       "Pedestrian",
	Cyclist:          "Cyclist",
	Car1:             "Car1",
	Car2:             "Car2",
	Motorbike:        "Motorbike",
	Taxi:             "Taxi",
	HGV:              "HGV",
	Minivan:          "Minivan",
	Bus:              "Bus",
	BusSBS:           "BusSBS",
}

// TypeName returns the name of a known type code, or the decimal code.
func TypeName(t trajlog.EntityType) string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return strconv.Itoa(int(t))
}

// ParseType accepts a type name (case-insensitive, "Bus_SBS" allowed) or a
// decimal code in [0, 255].
func ParseType(s string) (trajlog.EntityType, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return trajlog.EntityType(n), nil
	}
	key := strings.ReplaceAll(s, "_", "")
	for t, name := range typeNames {
		if strings.EqualFold(name, key) {
			return t, nil
		}
	}
	return None, fmt.Errorf("unknown entity type %q", s)
}

// ParseTypes parses each element with ParseType.
func ParseTypes(names []string) ([]trajlog.EntityType, error) {
	out := make([]trajlog.EntityType, 0, len(names))
	for _, n := range names {
		t, err := ParseType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// IsPedestrian reports whether t is one of the pedestrian codes.
func IsPedestrian(t trajlog.EntityType) bool {
	return t >= MalePedestrian && t <= Pedestrian
}
