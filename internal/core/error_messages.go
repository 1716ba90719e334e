// Package core provides the business logic for catalog ingestion.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Typed errors are matched first, then technical error text is matched
// against the pattern table below.
//
// # Ingestion Errors (ING001-ING099)
//
//	ING001 - Invalid manifest: The manifest header or workbook could not be read
//	         Action: Make sure the first row is a header that includes item_name
//	         Type: *ValidationError
//
//	ING002 - No products: No valid products found in CSV
//	         Action: Each row needs the same number of columns as the header and an item_name
//	         Type: *ZeroRowsError
//
//	ING003 - Unknown site: Site not found
//	         Action: Check the site_id and try again
//	         Type: ErrSiteNotFound
//
//	ING004 - Forbidden: You do not have access to this site
//	         Action: Ask the site owner or an administrator to run the upload
//	         Type: ErrForbidden
//
//	ING005 - Missing site: site_id is required
//	         Action: Choose a site before uploading
//	         Patterns: "site_id is required", "invalid site_id"
//
// # Storage Errors (STO001-STO099)
//
//	STO001 - Catalog not saved: The previous catalog is unchanged
//	         Action: Please try again
//	         Type: *TransientStorageError (catalog)
//
//	STO002 - Images not stored: Uploaded images could not be written
//	         Action: Please try again
//	         Type: *TransientStorageError (assets)
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key             Patterns: "duplicate key"
//	DB002 - Unique constraint         Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key               Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused        Patterns: "connection refused"
//	DB005 - Connection reset          Patterns: "connection reset"
//	DB006 - Timeout                   Patterns: "timeout"
//	DB007 - Deadlock                  Patterns: "deadlock"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Request too large       Patterns: "file too large", "request body too large"
//	FILE004 - No manifest             Patterns: "no file provided"
//	FILE006 - Bad form                Patterns: "invalid form"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy              Type: ErrTooManyUploads; Patterns: "too many uploads"
//	UPL004 - Request cancelled        Patterns: "context canceled"
//	UPL005 - Request timeout          Patterns: "context deadline exceeded"
//
// # Authentication (AUTH001-AUTH099)
//
//	AUTH001 - Missing token           Patterns: "missing bearer token"
//	AUTH002 - Invalid token           Patterns: "invalid token"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited            Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Request Errors (ING005, FILE001-FILE006)
	// =========================================================================
	{
		pattern: "site_id is required",
		msg: UserMessage{
			Message: "site_id is required",
			Action:  "Choose a site before uploading",
			Code:    "ING005",
		},
	},
	{
		pattern: "invalid site_id",
		msg: UserMessage{
			Message: "site_id must be a number",
			Action:  "Choose a site before uploading",
			Code:    "ING005",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "Upload exceeds the maximum request size",
			Action:  "Upload fewer or smaller images at a time",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "Upload exceeds the maximum request size",
			Action:  "Upload fewer or smaller images at a time",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No manifest file was provided",
			Action:  "Attach a CSV or XLSX manifest in the csv field",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid form",
		msg: UserMessage{
			Message: "The upload form could not be read",
			Action:  "Send the upload as multipart/form-data",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Authentication (AUTH001-AUTH002)
	// =========================================================================
	{
		pattern: "missing bearer token",
		msg: UserMessage{
			Message: "Authentication required",
			Action:  "Sign in and try again",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "invalid token",
		msg: UserMessage{
			Message: "Your session is invalid or has expired",
			Action:  "Sign in again",
			Code:    "AUTH002",
		},
	},

	// =========================================================================
	// Database Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your manifest",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Check for duplicate entries in your manifest",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check that the site still exists",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check that the site still exists",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try uploading fewer images or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Upload Errors (UPL002-UPL005)
	// =========================================================================
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading fewer images or check your connection",
			Code:    "UPL005",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Known error types are checked first; otherwise the error text is matched
// against the pattern table (case-insensitive) and the first match wins.
// If nothing matches, a generic fallback with code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var (
		ve  *ValidationError
		zre *ZeroRowsError
		tse *TransientStorageError
	)

	switch {
	case errors.As(err, &ve):
		return UserMessage{
			Message: "The manifest could not be read: " + ve.Message,
			Action:  "Make sure the first row is a header that includes item_name",
			Code:    "ING001",
		}, true
	case errors.As(err, &zre):
		return UserMessage{
			Message: "No valid products found in CSV",
			Action:  "Each row needs the same number of columns as the header and an item_name",
			Code:    "ING002",
		}, true
	case errors.Is(err, ErrSiteNotFound):
		return UserMessage{
			Message: "Site not found",
			Action:  "Check the site_id and try again",
			Code:    "ING003",
		}, true
	case errors.Is(err, ErrForbidden):
		return UserMessage{
			Message: "You do not have access to this site",
			Action:  "Ask the site owner or an administrator to run the upload",
			Code:    "ING004",
		}, true
	case errors.Is(err, ErrTooManyUploads):
		return UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		}, true
	case errors.Is(err, context.DeadlineExceeded):
		return UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading fewer images or check your connection",
			Code:    "UPL005",
		}, true
	case errors.As(err, &tse):
		if strings.Contains(tse.Op, "asset") {
			return UserMessage{
				Message: "Uploaded images could not be stored; the previous catalog is unchanged",
				Action:  "Please try again",
				Code:    "STO002",
			}, true
		}
		return UserMessage{
			Message: "The catalog could not be saved; the previous catalog is unchanged",
			Action:  "Please try again",
			Code:    "STO001",
		}, true
	}

	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
