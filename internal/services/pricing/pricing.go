package pricing

import (
	"sort"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/models"
)

// DefaultFallback is charged when no table entry matches.
const DefaultFallback int64 = 100

// appointmentPrices are keyed by appointment sub-service code.
var appointmentPrices = map[string]int64{
	"screen_replacement":  280,
	"battery_replacement": 150,
	"charging_port":       120,
	"camera_repair":       200,
	"water_damage":        260,
	"system_reinstall":    80,
	"data_recovery":       300,
	"inspection":          50,
}

type Entry struct {
	ServiceType        models.ServiceType `json:"service_type"`
	AppointmentService string             `json:"appointment_service"`
	Amount             int64              `json:"amount"`
}

// Table is the static (serviceType, appointmentService) -> amount lookup.
type Table struct {
	prices   map[models.ServiceType]map[string]int64
	fallback int64
}

func NewTable(fallback int64) *Table {
	return &Table{
		prices: map[models.ServiceType]map[string]int64{
			models.ServiceAppointment: appointmentPrices,
		},
		fallback: fallback,
	}
}

// Price returns the amount for the pair, or the fallback when unlisted.
// Plain repair orders have no sub-service entry and always take the fallback.
func (t *Table) Price(serviceType models.ServiceType, appointmentService string) int64 {
	if amount, ok := t.prices[serviceType][appointmentService]; ok {
		return amount
	}
	return t.fallback
}

func (t *Table) Fallback() int64 {
	return t.fallback
}

// Entries lists the table for display, sorted by code.
func (t *Table) Entries() []Entry {
	var out []Entry
	for st, byCode := range t.prices {
		for code, amount := range byCode {
			out = append(out, Entry{ServiceType: st, AppointmentService: code, Amount: amount})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceType != out[j].ServiceType {
			return out[i].ServiceType < out[j].ServiceType
		}
		return out[i].AppointmentService < out[j].AppointmentService
	})
	return out
}
