package services

import (
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/orthodesk/orthodesk/authz"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// setupRedis starts a miniredis instance and returns a client bound to it
func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func grant(app authz.Application, perms ...authz.Permission) authz.Grant {
	return authz.Grant{ApplicationName: app, Role: &authz.Role{ID: "role-" + string(app), Name: string(app), Permissions: perms}}
}

func can(action authz.Action, resource authz.Resource) authz.Permission {
	return authz.Permission{Action: action, Resource: resource}
}

// staff builds a tenant-1 principal who belongs to clinic-a and clinic-b
func staff(id string, grants ...authz.Grant) authz.Principal {
	return authz.Principal{
		ID:       id,
		TenantID: "tenant-1",
		Email:    id + "@example.com",
		Grants:   grants,
		Clinics: []authz.ClinicMembership{
			{ClinicID: "clinic-a", TenantID: "tenant-1"},
			{ClinicID: "clinic-b", TenantID: "tenant-1"},
		},
	}
}

func rcOf(p authz.Principal, clinic string) authz.RequestContext {
	return authz.NewRequestContext(p, clinic)
}
