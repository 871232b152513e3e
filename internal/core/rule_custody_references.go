package core

import (
	"context"
	"fmt"

	"gibiertrace/pkg/domain"
)

const custodyReferencesRuleName = "custody_references"

// CustodyReferencesRule ensures live units reference an existing dossier and
// live hops reference an existing unit of the same dossier.
func CustodyReferencesRule() domain.Rule {
	return custodyReferencesRule{}
}

type custodyReferencesRule struct{}

func (custodyReferencesRule) Name() string { return custodyReferencesRuleName }

func (custodyReferencesRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityUnit:
			unit, ok := domain.DecodeChangePayload[domain.Unit](change.After)
			if !ok || unit.IsDeleted() {
				continue
			}
			if _, found := view.FindDossier(unit.DossierNumero); !found {
				res.Violations = append(res.Violations, blockf(custodyReferencesRuleName, domain.EntityUnit, unit.UnitID,
					fmt.Sprintf("carcasse %s references missing fei %s", unit.UnitID, unit.DossierNumero)))
			}
		case domain.EntityHop:
			hop, ok := domain.DecodeChangePayload[domain.CustodyHop](change.After)
			if !ok || hop.DeletedAt != nil {
				continue
			}
			unit, found := view.FindUnit(hop.UnitID)
			if !found || unit.DossierNumero != hop.DossierNumero {
				res.Violations = append(res.Violations, blockf(custodyReferencesRuleName, domain.EntityHop, change.Key,
					fmt.Sprintf("carcasse_intermediaire %s references missing carcasse %s in fei %s", hop.HandlerID, hop.UnitID, hop.DossierNumero)))
			}
		}
	}
	return res, nil
}
