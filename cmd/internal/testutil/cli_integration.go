//go:build integration

// Package testutil runs the cadence CLI against a MySQL container.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"
)

const (
	mysqlImage          = "mysql:8.0.36"
	mysqlAlias          = "mysql"
	mysqlDatabase       = "cadence"
	mysqlUser           = "root"
	mysqlPassword       = "secret"
	mysqlStartupTimeout = 2 * time.Minute

	cliPackage        = "github.com/velmie/cadence/cmd/cadence"
	cliContainerImage = "alpine:3.20"
	cliContainerPath  = "/usr/local/bin/cadence"
	cliExitTimeout    = 2 * time.Minute
)

// MySQL is a cadence database reachable from the host through DB and from CLI
// containers on the same network through DSN.
type MySQL struct {
	Container testcontainers.Container
	Network   *testcontainers.DockerNetwork
	DB        *sql.DB
	DSN       string
}

// CLIResult is the outcome of one cadence CLI run.
type CLIResult struct {
	ExitCode int
	Output   string
}

// StartMySQL starts MySQL on a fresh network. It skips the test when Docker is unavailable.
func StartMySQL(t *testing.T, ctx context.Context) *MySQL {
	t.Helper()

	net, err := network.New(ctx)
	if err != nil {
		t.Skipf("create network: %v", err)
	}
	t.Cleanup(func() {
		_ = net.Remove(ctx)
	})

	port := nat.Port("3306/tcp")
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mysqlImage,
			ExposedPorts: []string{string(port)},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": mysqlPassword,
				"MYSQL_DATABASE":      mysqlDatabase,
			},
			Networks:       []string{net.Name},
			NetworkAliases: map[string][]string{net.Name: {mysqlAlias}},
			WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
				return mysqlDSN(host, port.Port())
			}).WithStartupTimeout(mysqlStartupTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}
	db, err := sql.Open("mysql", mysqlDSN(host, mapped.Port()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return &MySQL{
		Container: container,
		Network:   net,
		DB:        db,
		DSN:       mysqlDSN(mysqlAlias, "3306"),
	}
}

// Env returns the CADENCE_* variables that point the CLI at this database, merged with extra.
func (m *MySQL) Env(extra map[string]string) map[string]string {
	env := map[string]string{
		"CADENCE_STORE_DRIVER": "mysql",
		"CADENCE_STORE_DSN":    m.DSN,
	}
	for k, v := range extra {
		env[k] = v
	}

	return env
}

// BuildCLI builds the cadence command as a static linux binary in a temp dir.
func BuildCLI(t *testing.T) string {
	t.Helper()

	bin := filepath.Join(t.TempDir(), "cadence")
	cmd := exec.Command("go", "build", "-o", bin, cliPackage)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=0",
		"GOOS=linux",
		"GOARCH="+runtime.GOARCH,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build cadence: %v\n%s", err, out)
	}

	return bin
}

// RunCLI runs the cadence binary with env and args in a container on the database network.
func (m *MySQL) RunCLI(t *testing.T, ctx context.Context, bin string, env map[string]string, args ...string) CLIResult {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      cliContainerImage,
			Entrypoint: []string{cliContainerPath},
			Cmd:        args,
			Env:        env,
			Networks:   []string{m.Network.Name},
			Files: []testcontainers.ContainerFile{{
				HostFilePath:      bin,
				ContainerFilePath: cliContainerPath,
				FileMode:          0o755,
			}},
			WaitingFor: wait.ForExit().WithExitTimeout(cliExitTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start cadence container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	logs, err := container.Logs(ctx)
	if err != nil {
		t.Fatalf("read cadence output: %v", err)
	}
	defer logs.Close()
	out, err := io.ReadAll(logs)
	if err != nil {
		t.Fatalf("read cadence output: %v", err)
	}

	state, err := container.State(ctx)
	if err != nil {
		t.Fatalf("read cadence state: %v", err)
	}

	return CLIResult{ExitCode: state.ExitCode, Output: string(out)}
}

func mysqlDSN(host, port string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
		mysqlUser, mysqlPassword, host, port, mysqlDatabase)
}
