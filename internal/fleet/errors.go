// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fleet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FleetErrorCode represents a category of fleet error.
type FleetErrorCode string

const (
	// ErrorCodePortConflict indicates a port is held by a process outside the fleet.
	ErrorCodePortConflict FleetErrorCode = "PORT_CONFLICT"
	// ErrorCodeUnhealthy indicates a service failed to become healthy.
	ErrorCodeUnhealthy FleetErrorCode = "UNHEALTHY"
	// ErrorCodeDockerNotFound indicates the docker CLI is not installed.
	ErrorCodeDockerNotFound FleetErrorCode = "DOCKER_NOT_FOUND"
	// ErrorCodeComposeFailed indicates a docker compose invocation failed.
	ErrorCodeComposeFailed FleetErrorCode = "COMPOSE_FAILED"
	// ErrorCodeNotFound indicates a service is not part of the fleet.
	ErrorCodeNotFound FleetErrorCode = "NOT_FOUND"
	// ErrorCodeConfig indicates a configuration error.
	ErrorCodeConfig FleetErrorCode = "CONFIG"
	// ErrorCodeVerifyFailed indicates a service failed MCP protocol verification.
	ErrorCodeVerifyFailed FleetErrorCode = "VERIFY_FAILED"
)

// FleetError is an error type that includes suggestions for resolution.
type FleetError struct {
	// Code is the error category.
	Code FleetErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *FleetError) Error() string {
	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if e.Detail != "" {
		sb.WriteString("  → ")
		sb.WriteString(e.Detail)
		sb.WriteString("\n")
	}

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n  Suggestions:\n")
		for _, s := range e.Suggestions {
			sb.WriteString("  - ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *FleetError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements pkg/errors.UserVisibleError.
// Fleet errors are always user-visible.
func (e *FleetError) IsUserVisible() bool {
	return true
}

// UserMessage implements pkg/errors.UserVisibleError.
// Returns a user-friendly message without technical details.
func (e *FleetError) UserMessage() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Suggestion implements pkg/errors.UserVisibleError.
// Returns actionable guidance for resolving the error.
func (e *FleetError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	// Return the first suggestion as a simple string
	// The full list is available in Error() output
	return e.Suggestions[0]
}

// NewFleetError creates a new FleetError.
func NewFleetError(code FleetErrorCode, message string) *FleetError {
	return &FleetError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *FleetError) WithDetail(detail string) *FleetError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *FleetError) WithSuggestions(suggestions ...string) *FleetError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *FleetError) WithCause(cause error) *FleetError {
	e.Cause = cause
	return e
}

// ErrPortConflict creates an error for ports held by processes outside the fleet.
func ErrPortConflict(ports []int) *FleetError {
	rendered := make([]string, len(ports))
	for i, p := range ports {
		rendered[i] = strconv.Itoa(p)
	}

	example := "<port>"
	if len(ports) > 0 {
		example = strconv.Itoa(ports[0])
	}

	return NewFleetError(ErrorCodePortConflict, fmt.Sprintf("Ports already in use: %s", strings.Join(rendered, ", "))).
		WithDetail("A process outside the fleet is listening on these ports").
		WithSuggestions(
			fmt.Sprintf("Free the port: lsof -ti:%s | xargs kill", example),
			fmt.Sprintf("Find the process: lsof -i :%s", example),
			"Re-run once the ports are free: mcpfleet up",
		)
}

// ErrUnhealthyAfterStart creates an error for a service that started but never
// answered its health endpoint.
func ErrUnhealthyAfterStart(name string, timeout time.Duration) *FleetError {
	return NewFleetError(ErrorCodeUnhealthy, fmt.Sprintf("Service '%s' did not become healthy", name)).
		WithDetail(fmt.Sprintf("Containers started but the health endpoint did not answer within %v", timeout)).
		WithSuggestions(
			fmt.Sprintf("Check container logs: mcpfleet logs %s", name),
			fmt.Sprintf("Check container state: docker ps --filter name=%s", name),
			fmt.Sprintf("Allow more startup time: mcpfleet up --timeout %v", timeout*2),
		)
}

// ErrDockerNotFound creates an error for a missing docker CLI.
func ErrDockerNotFound(cause error) *FleetError {
	return NewFleetError(ErrorCodeDockerNotFound, "Docker CLI not found").
		WithDetail("mcpfleet manages services through docker compose").
		WithCause(cause).
		WithSuggestions(
			"Install Docker Desktop: https://docs.docker.com/get-docker/",
			"Verify the install: docker version",
		)
}

// ErrComposeFailed creates an error for a failed docker compose invocation.
func ErrComposeFailed(operation string, cause error) *FleetError {
	return NewFleetError(ErrorCodeComposeFailed, fmt.Sprintf("docker compose %s failed", operation)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			"Check the Docker daemon is running: docker info",
			"Inspect recent container output: mcpfleet logs",
		)
}

// ErrServiceNotFound creates an error for a service name outside the fleet.
func ErrServiceNotFound(name string) *FleetError {
	return NewFleetError(ErrorCodeNotFound, fmt.Sprintf("Service '%s' is not part of the fleet", name)).
		WithSuggestions(
			"List fleet services: mcpfleet status",
			"Check the service name spelling",
		)
}

// ErrComposeFileNotFound creates an error for a missing compose file.
func ErrComposeFileNotFound(path string) *FleetError {
	return NewFleetError(ErrorCodeConfig, fmt.Sprintf("Compose file not found: %s", path)).
		WithSuggestions(
			"Run mcpfleet from the directory containing the compose file",
			"Point at the file explicitly: mcpfleet up --compose-file <path>",
		)
}

// ErrVerifyFailed creates an error for a service that failed MCP verification.
func ErrVerifyFailed(name string, cause error) *FleetError {
	return NewFleetError(ErrorCodeVerifyFailed, fmt.Sprintf("Service '%s' failed MCP verification", name)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			"Check the service is healthy: mcpfleet status",
			fmt.Sprintf("Check container logs: mcpfleet logs %s", name),
		)
}

// WrapError wraps a standard error in a FleetError if it isn't one already.
func WrapError(err error, code FleetErrorCode, message string) *FleetError {
	if fleetErr, ok := err.(*FleetError); ok {
		return fleetErr
	}
	return NewFleetError(code, message).WithDetail(err.Error()).WithCause(err)
}

// GetFleetError extracts a FleetError from an error chain.
func GetFleetError(err error) *FleetError {
	if fleetErr, ok := err.(*FleetError); ok {
		return fleetErr
	}
	return nil
}
