package listings

import (
	"fmt"

	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/records"
)

// Resource names as they appear in URLs.
const (
	ResourceEquipment  = "equipment"
	ResourceAnimals    = "animals"
	ResourceLand       = "land"
	ResourceVegetables = "vegetables"
	ResourceNurseries  = "nurseries"
	ResourceLabor      = "labor"
	ResourceAnalysis   = "analysis"
	ResourceDelivery   = "delivery"
)

// RegisterDefaults opens a store for every listing table on src and
// registers its service. base supplies the shared options; Resource is set
// per table.
func RegisterDefaults(reg *Registry, src records.Source, base Options) error {
	steps := []func() error{
		func() error { return open(reg, src, domain.EquipmentTable, ResourceEquipment, base) },
		func() error { return open(reg, src, domain.AnimalTable, ResourceAnimals, base) },
		func() error { return open(reg, src, domain.LandTable, ResourceLand, base) },
		func() error { return open(reg, src, domain.VegetableTable, ResourceVegetables, base) },
		func() error { return open(reg, src, domain.NurseryTable, ResourceNurseries, base) },
		func() error { return open(reg, src, domain.LaborTable, ResourceLabor, base) },
		func() error { return open(reg, src, domain.AnalysisTable, ResourceAnalysis, base) },
		func() error { return open(reg, src, domain.DeliveryTable, ResourceDelivery, base) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func open[T Row](reg *Registry, src records.Source, table records.Table[T], resource string, base Options) error {
	store, err := records.Open(src, table)
	if err != nil {
		return fmt.Errorf("open %s store: %w", resource, err)
	}
	opts := base
	opts.Resource = resource
	return Register(reg, New(store, opts))
}
