// SPDX-License-Identifier: MIT

package daemon

import "errors"

// ErrManagerNotStarted is returned when Shutdown is called before Start.
var ErrManagerNotStarted = errors.New("daemon: manager not started")
