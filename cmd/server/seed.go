package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/request-engine/admission"
	"github.com/warp/request-engine/api"
)

// seeder is implemented by all three stores.
type seeder interface {
	SaveRole(ctx context.Context, r admission.Role) error
	SaveUser(ctx context.Context, u admission.User) error
	SaveAbsenceType(ctx context.Context, t admission.AbsenceType) error
}

var demoRoles = []*admission.Role{
	admission.NewRole("employee", admission.PermRequestCreate),
	admission.NewRole("manager", admission.PermRequestCreate, admission.PermRequestReview, admission.PermRequestReadAll),
	admission.NewRole("hr", admission.PermRequestReadAll),
}

var demoUsers = []admission.User{
	{ID: "alice", Name: "Alice Martin", RoleID: "employee", IsActive: true, AllowedLeaveDays: decimal.NewFromInt(25)},
	{ID: "bob", Name: "Bob Chen", RoleID: "manager", IsActive: true, AllowedLeaveDays: decimal.NewFromInt(25)},
	{ID: "carol", Name: "Carol Diaz", RoleID: "hr", IsActive: true, AllowedLeaveDays: decimal.RequireFromString("12.5")},
	{ID: "dan", Name: "Dan Former", RoleID: "employee", IsActive: false, AllowedLeaveDays: decimal.Zero},
}

func demoAbsenceTypes() []admission.AbsenceType {
	sickCap := decimal.NewFromInt(5)
	return []admission.AbsenceType{
		{ID: "annual", Name: "Annual leave", DeductFromAllowed: true},
		{ID: "sick", Name: "Sick leave", AvailableDays: &sickCap},
		{ID: "unpaid", Name: "Unpaid leave"},
	}
}

// seedDemo upserts the demo reference data. Safe to run on every start.
func seedDemo(ctx context.Context, s seeder) error {
	for _, r := range demoRoles {
		if err := s.SaveRole(ctx, *r); err != nil {
			return fmt.Errorf("save role %s: %w", r.Name, err)
		}
	}
	for _, u := range demoUsers {
		if err := s.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save user %s: %w", u.ID, err)
		}
	}
	for _, t := range demoAbsenceTypes() {
		if err := s.SaveAbsenceType(ctx, t); err != nil {
			return fmt.Errorf("save absence type %s: %w", t.ID, err)
		}
	}
	return nil
}

func printDemoTokens(log logrus.FieldLogger, secret []byte) {
	for _, u := range demoUsers {
		if !u.IsActive {
			continue
		}
		tok, err := api.SignToken(secret, u.ID, time.Now(), 24*time.Hour)
		if err != nil {
			log.WithError(err).Warn("could not sign demo token")
			return
		}
		log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.RoleID}).Infof("demo token: %s", tok)
	}
}
