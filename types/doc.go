// Package types provides core types shared across the flowforge engine.
// This package has ZERO dependencies on other flowforge packages to avoid
// circular imports. All other packages should import types from here.
package types
