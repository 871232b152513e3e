package core

import (
	"context"
	"fmt"

	"gibiertrace/pkg/domain"
)

const dossierClosureRuleName = "dossier_closure"

// DossierClosureRule enforces closure exclusivity and the terminal lock: once a
// closure marker is set, ownership cannot move and markers cannot change.
func DossierClosureRule() domain.Rule {
	return dossierClosureRule{}
}

type dossierClosureRule struct{}

func (dossierClosureRule) Name() string { return dossierClosureRuleName }

func (dossierClosureRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDossier {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Dossier](change.After)
		if !ok {
			continue
		}
		if after.ClosureCount() > 1 {
			res.Violations = append(res.Violations, blockf(dossierClosureRuleName, domain.EntityDossier, after.Numero,
				fmt.Sprintf("fei %s carries %d closure markers", after.Numero, after.ClosureCount())))
		}
		if after.IsTerminal() && after.NextOwnerRole != nil {
			res.Violations = append(res.Violations, blockf(dossierClosureRuleName, domain.EntityDossier, after.Numero,
				fmt.Sprintf("fei %s is closed but has a pending handoff to %s", after.Numero, *after.NextOwnerRole)))
		}

		before, ok := domain.DecodeChangePayload[domain.Dossier](change.Before)
		if !ok || !before.IsTerminal() {
			continue
		}
		if ownershipMoved(before, after) {
			res.Violations = append(res.Violations, blockf(dossierClosureRuleName, domain.EntityDossier, after.Numero,
				fmt.Sprintf("fei %s is closed; ownership transitions are no longer accepted", after.Numero)))
		}
		if !timesEqual(before.SVIClosedAt, after.SVIClosedAt) ||
			!timesEqual(before.IntermediaireClosedAt, after.IntermediaireClosedAt) ||
			!timesEqual(before.AutomaticClosedAt, after.AutomaticClosedAt) {
			res.Violations = append(res.Violations, blockf(dossierClosureRuleName, domain.EntityDossier, after.Numero,
				fmt.Sprintf("fei %s closure markers are immutable", after.Numero)))
		}
	}
	return res, nil
}

func ownershipMoved(before, after domain.Dossier) bool {
	return !rolesEqual(before.CurrentOwnerRole, after.CurrentOwnerRole) ||
		!stringsEqual(before.CurrentOwnerUserID, after.CurrentOwnerUserID) ||
		!stringsEqual(before.CurrentOwnerEntityID, after.CurrentOwnerEntityID) ||
		!rolesEqual(before.NextOwnerRole, after.NextOwnerRole) ||
		!stringsEqual(before.NextOwnerUserID, after.NextOwnerUserID) ||
		!stringsEqual(before.NextOwnerEntityID, after.NextOwnerEntityID)
}
