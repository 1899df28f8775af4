package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMigrator struct {
	calls []string
	err   error
}

func (f *fakeMigrator) RunMigrations(string) error {
	f.calls = append(f.calls, "up")
	return f.err
}

func (f *fakeMigrator) MigrateDown(_ string, steps int) error {
	f.calls = append(f.calls, "down")
	return f.err
}

func (f *fakeMigrator) MigrateToVersion(string, uint) error {
	f.calls = append(f.calls, "version")
	return f.err
}

func (f *fakeMigrator) ForceMigrationVersion(string, uint) error {
	f.calls = append(f.calls, "force")
	return f.err
}

func (f *fakeMigrator) MigrationVersion(string) (uint, bool, error) {
	f.calls = append(f.calls, "status")
	return 3, false, f.err
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts options
		ok   bool
	}{
		{"up", options{action: "up"}, true},
		{"status", options{action: "status"}, true},
		{"force to zero", options{action: "force"}, true},
		{"down", options{action: "down", steps: 2}, true},
		{"down without steps", options{action: "down"}, false},
		{"version without target", options{action: "version"}, false},
		{"version", options{action: "version", target: 2}, true},
		{"unknown", options{action: "drop"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errUsage)
			}
		})
	}
}

func TestRun_Dispatch(t *testing.T) {
	for _, action := range []string{"up", "down", "version", "force", "status"} {
		m := &fakeMigrator{}
		require.NoError(t, run(m, "migrations", options{action: action, steps: 1, target: 1}, zap.NewNop()))
		assert.Equal(t, []string{action}, m.calls)
	}

	m := &fakeMigrator{err: errors.New("dirty database")}
	assert.EqualError(t, run(m, "migrations", options{action: "up"}, zap.NewNop()), "dirty database")
}
