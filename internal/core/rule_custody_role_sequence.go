package core

import (
	"context"
	"fmt"

	"gibiertrace/pkg/domain"
)

const custodyRoleSequenceRuleName = "custody_role_sequence"

// CustodyRoleSequenceRule restricts holder roles to handler roles and keeps a
// dossier held by the inspection service there. Intermediate handlers may
// appear in any order.
func CustodyRoleSequenceRule() domain.Rule {
	return custodyRoleSequenceRule{}
}

type custodyRoleSequenceRule struct{}

func (custodyRoleSequenceRule) Name() string { return custodyRoleSequenceRuleName }

func (custodyRoleSequenceRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityDossier:
			res.Merge(evaluateDossierRoles(change))
		case domain.EntityHop:
			hop, ok := domain.DecodeChangePayload[domain.CustodyHop](change.After)
			if !ok || hop.HandlerRole == nil {
				continue
			}
			if !hop.HandlerRole.IsHandler() {
				res.Violations = append(res.Violations, blockf(custodyRoleSequenceRuleName, domain.EntityHop, change.Key,
					fmt.Sprintf("intermediaire role %q is not a handler role", *hop.HandlerRole)))
			}
		}
	}
	return res, nil
}

func evaluateDossierRoles(change domain.Change) domain.Result {
	res := domain.Result{}
	after, ok := domain.DecodeChangePayload[domain.Dossier](change.After)
	if !ok {
		return res
	}
	for _, slot := range []struct {
		label string
		role  *domain.Role
	}{
		{"fei_current_owner_role", after.CurrentOwnerRole},
		{"fei_next_owner_role", after.NextOwnerRole},
		{"fei_prev_owner_role", after.PrevOwnerRole},
	} {
		if slot.role != nil && !slot.role.IsHandler() {
			res.Violations = append(res.Violations, blockf(custodyRoleSequenceRuleName, domain.EntityDossier, after.Numero,
				fmt.Sprintf("%s %q is not a handler role", slot.label, *slot.role)))
		}
	}

	before, ok := domain.DecodeChangePayload[domain.Dossier](change.Before)
	if !ok || before.CurrentOwnerRole == nil || *before.CurrentOwnerRole != domain.RoleSVI {
		return res
	}
	if after.CurrentOwnerRole == nil || *after.CurrentOwnerRole != domain.RoleSVI {
		res.Violations = append(res.Violations, blockf(custodyRoleSequenceRuleName, domain.EntityDossier, after.Numero,
			fmt.Sprintf("fei %s is held by SVI and cannot be handed back", after.Numero)))
	}
	if after.NextOwnerRole != nil && !rolesEqual(before.NextOwnerRole, after.NextOwnerRole) {
		res.Violations = append(res.Violations, blockf(custodyRoleSequenceRuleName, domain.EntityDossier, after.Numero,
			fmt.Sprintf("fei %s is held by SVI and cannot be assigned to %s", after.Numero, *after.NextOwnerRole)))
	}
	return res
}
