// Package cmn provides common low-level types and utilities shared by every
// package in this module: error kinds, assertions, configuration, logging.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind is the error taxonomy from the design: kind-level, not type-level.
// Callers switch on Kind, never on the concrete error type.
type Kind string

const (
	// Input
	KindAlreadyExists   Kind = "AlreadyExists"
	KindNotFound        Kind = "NotFound"
	KindInvalidNodeCnt  Kind = "InvalidNodeCount"
	KindInvalidKind     Kind = "InvalidKind"
	KindRoleConflict    Kind = "RoleConflict"

	// Resource
	KindNoAvailableResource Kind = "NoAvailableResource"
	KindInUse               Kind = "InUse"
	KindMigrationRunning    Kind = "MigrationRunning"

	// Consistency
	KindInconsistent Kind = "InconsistentError"

	// Migration
	KindAlreadyStarted     Kind = "AlreadyStarted"
	KindAlreadyEnded       Kind = "AlreadyEnded"
	KindCanceled           Kind = "Canceled"
	KindNotReady           Kind = "NotReady"
	KindIncompatibleVer    Kind = "IncompatibleVersion"
	KindTimeout            Kind = "Timeout"
	KindAlreadyCommitted   Kind = "AlreadyCommitted"

	// Transport
	KindRedisClient Kind = "RedisClient"
	KindIO          Kind = "Io"
	KindReplError   Kind = "ReplError"
)

// Error is the single error type used across the module. It always carries
// enough context to identify the offending task or mutation, per the
// propagation policy: "user-visible failures always carry enough context
// (cluster, epoch, phase) to identify the task."
type Error struct {
	Kind    Kind
	Msg     string
	Cluster string
	Epoch   uint64
	Phase   string
	cause   error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	if e.Cluster != "" {
		s += fmt.Sprintf(" (cluster=%s", e.Cluster)
		if e.Epoch != 0 {
			s += fmt.Sprintf(" epoch=%d", e.Epoch)
		}
		if e.Phase != "" {
			s += fmt.Sprintf(" phase=%s", e.Phase)
		}
		s += ")"
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.cause }

// WithContext attaches cluster/epoch/phase context and returns the receiver
// for chaining, e.g. `return cmn.NewNotFound("cluster %s", name).WithContext(name, 0, "")`.
func (e *Error) WithContext(cluster string, epoch uint64, phase string) *Error {
	e.Cluster = cluster
	e.Epoch = epoch
	e.Phase = phase
	return e
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NewAlreadyExists(format string, args ...interface{}) *Error {
	return newErr(KindAlreadyExists, format, args...)
}
func NewNotFound(format string, args ...interface{}) *Error {
	return newErr(KindNotFound, format, args...)
}
func NewInvalidNodeCount(format string, args ...interface{}) *Error {
	return newErr(KindInvalidNodeCnt, format, args...)
}
func NewInvalidKind(format string, args ...interface{}) *Error {
	return newErr(KindInvalidKind, format, args...)
}
func NewRoleConflict(format string, args ...interface{}) *Error {
	return newErr(KindRoleConflict, format, args...)
}
func NewNoAvailableResource(format string, args ...interface{}) *Error {
	return newErr(KindNoAvailableResource, format, args...)
}
func NewInUse(format string, args ...interface{}) *Error {
	return newErr(KindInUse, format, args...)
}
func NewMigrationRunning(format string, args ...interface{}) *Error {
	return newErr(KindMigrationRunning, format, args...)
}
func NewInconsistent(format string, args ...interface{}) *Error {
	return newErr(KindInconsistent, format, args...)
}
func NewAlreadyStarted(format string, args ...interface{}) *Error {
	return newErr(KindAlreadyStarted, format, args...)
}
func NewAlreadyEnded(format string, args ...interface{}) *Error {
	return newErr(KindAlreadyEnded, format, args...)
}
func NewCanceled(format string, args ...interface{}) *Error {
	return newErr(KindCanceled, format, args...)
}
func NewNotReady(format string, args ...interface{}) *Error {
	return newErr(KindNotReady, format, args...)
}
func NewIncompatibleVersion(format string, args ...interface{}) *Error {
	return newErr(KindIncompatibleVer, format, args...)
}
func NewTimeout(format string, args ...interface{}) *Error {
	return newErr(KindTimeout, format, args...)
}
func NewAlreadyCommitted(format string, args ...interface{}) *Error {
	return newErr(KindAlreadyCommitted, format, args...)
}

// WrapTransport tags a lower-level transport failure (connection drop, RESP
// decode error, replication error) with its kind while preserving the cause
// via github.com/pkg/errors, matching the project's wrap-and-cause idiom.
func WrapTransport(kind Kind, cause error, format string, args ...interface{}) *Error {
	e := newErr(kind, format, args...)
	e.cause = errors.WithStack(cause)
	return e
}

// KindOf extracts the Kind of err, or "" if err is not (or does not wrap) a
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a domain error to the broker's HTTP status code per the
// design: NoAvailableResource -> 409, other validation errors -> 400,
// InconsistentError -> 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindNoAvailableResource:
		return http.StatusConflict
	case KindInconsistent:
		return http.StatusInternalServerError
	case "":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
