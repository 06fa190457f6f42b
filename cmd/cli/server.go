package main

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	serverBinary       = "reel-extract-server"
	serverStartTimeout = 10 * time.Second
	serverPollInterval = 200 * time.Millisecond
)

// probe reports whether path on the server answers 200
func probe(path string) bool {
	httpClient := &http.Client{Timeout: 1 * time.Second}
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// isServerRunning checks if the server is responding to health checks
func isServerRunning() bool {
	return probe("/health")
}

// isLocalServer reports whether serverURL points at this machine, the only
// case where starting a server makes sense
func isLocalServer() bool {
	u, err := url.Parse(serverURL)
	if err != nil {
		return false
	}
	switch host := u.Hostname(); host {
	case "localhost", "":
		return true
	default:
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
}

// findServerBinary locates the server binary next to the CLI, on PATH, or in common locations
func findServerBinary() (string, error) {
	if execPath, err := os.Executable(); err == nil {
		serverPath := filepath.Join(filepath.Dir(execPath), serverBinary)
		if _, err := os.Stat(serverPath); err == nil {
			return serverPath, nil
		}
	}

	if serverPath, err := exec.LookPath(serverBinary); err == nil {
		return serverPath, nil
	}

	home, _ := os.UserHomeDir()
	for _, p := range []string{
		filepath.Join("/usr/local/bin", serverBinary),
		filepath.Join("/usr/bin", serverBinary),
		filepath.Join(home, "go", "bin", serverBinary),
		filepath.Join(home, ".local", "bin", serverBinary),
	} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s binary not found", serverBinary)
}

// startServerBackground starts the server as a detached background process
func startServerBackground() error {
	serverPath, err := findServerBinary()
	if err != nil {
		return err
	}

	// -server-mode keeps the server from forking again
	args := []string{"-server-mode"}
	if configFile != "" {
		args = append(args, "-config", configFile)
	}
	cmd := exec.Command(serverPath, args...)
	detachProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// reap the child if it exits while the CLI is still running
	go cmd.Wait()

	return nil
}

// waitForServerReady polls /ready until the server can take fetches or the timeout passes
func waitForServerReady() error {
	deadline := time.Now().Add(serverStartTimeout)

	for time.Now().Before(deadline) {
		if probe("/ready") {
			return nil
		}
		time.Sleep(serverPollInterval)
	}

	return fmt.Errorf("server did not become ready within %v", serverStartTimeout)
}

// ensureServerRunning checks if server is running, starts it if not
func ensureServerRunning() error {
	if isServerRunning() {
		return nil
	}
	if !isLocalServer() {
		return fmt.Errorf("server %s is not reachable", serverURL)
	}

	fmt.Fprintln(os.Stderr, "Server not running, starting...")

	if err := startServerBackground(); err != nil {
		return err
	}

	if err := waitForServerReady(); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Server started successfully")
	return nil
}
