// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cache

import "errors"

var ErrInvalidParameter = errors.New("invalid parameter")
