package domain

import (
	"strings"
)

// PackageType classifies a sellable package.
type PackageType string

const (
	PackageTicket     PackageType = "biglietto"
	PackageExperience PackageType = "esperienza"
	PackageAwayTrip   PackageType = "trasferta"
	PackageTour       PackageType = "tour"
)

// TransportType is the travel mode of an away trip.
type TransportType string

const (
	TransportBus     TransportType = "bus"
	TransportFlixbus TransportType = "flixbus"
	TransportTrain   TransportType = "treno"
	TransportPlane   TransportType = "aereo"
)

// Transport describes travel arrangements for away trips.
type Transport struct {
	Type      TransportType `json:"type" firestore:"type"`
	Departure string        `json:"partenza" firestore:"partenza"`
	Arrival   string        `json:"arrivo" firestore:"arrivo"`
	Schedule  string        `json:"orario" firestore:"orario"`
}

// PackageItem is a ticket, experience, away trip or tour offered to supporters.
type PackageItem struct {
	ID          string      `json:"id" firestore:"-"`
	Name        string      `json:"name" firestore:"name"`
	Type        PackageType `json:"type" firestore:"type"`
	Price       float64     `json:"price" firestore:"price"`
	Description string      `json:"description" firestore:"description"`
	Features    []string    `json:"features" firestore:"features"`
	Duration    string      `json:"duration,omitempty" firestore:"duration,omitempty"`
	Image       string      `json:"image,omitempty" firestore:"image,omitempty"`
	Active      bool        `json:"active" firestore:"active"`
	Popular     bool        `json:"popular" firestore:"popular"`
	Transport   *Transport  `json:"transport,omitempty" firestore:"transport,omitempty"`
}

// PackageTypes lists the supported package types in display order.
func PackageTypes() []PackageType {
	return []PackageType{PackageTicket, PackageExperience, PackageAwayTrip, PackageTour}
}

// ValidatePackage rejects packages that cannot be offered.
func ValidatePackage(p PackageItem) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "is required")
	}
	switch p.Type {
	case PackageTicket, PackageExperience, PackageAwayTrip, PackageTour:
	default:
		return invalid("type", "%q is not supported", p.Type)
	}
	if p.Price < 0 {
		return invalid("price", "must not be negative")
	}
	if p.Transport != nil {
		switch p.Transport.Type {
		case TransportBus, TransportFlixbus, TransportTrain, TransportPlane:
		default:
			return invalid("transport.type", "%q is not supported", p.Transport.Type)
		}
	}
	return nil
}

// ActivePackages returns packages currently on sale.
func ActivePackages(packages []PackageItem) []PackageItem {
	out := make([]PackageItem, 0, len(packages))
	for _, p := range packages {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// PackagesOfType returns active packages of the given type.
func PackagesOfType(packages []PackageItem, kind PackageType) []PackageItem {
	out := make([]PackageItem, 0)
	for _, p := range packages {
		if p.Active && p.Type == kind {
			out = append(out, p)
		}
	}
	return out
}

// PopularPackages returns active packages flagged as popular.
func PopularPackages(packages []PackageItem) []PackageItem {
	out := make([]PackageItem, 0)
	for _, p := range packages {
		if p.Active && p.Popular {
			out = append(out, p)
		}
	}
	return out
}
