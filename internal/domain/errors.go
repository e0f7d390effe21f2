// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrUnknownRoomCategory = errors.New("unknown room category")
var ErrUnknownStyleProfile = errors.New("unknown style profile")
var ErrMissingImage = errors.New("missing input image")
var ErrEmptyPlan = errors.New("stage selection produced an empty plan")
var ErrRunNotFound = errors.New("staging run not found")
var ErrUnknownJobHandle = errors.New("unknown job handle")
