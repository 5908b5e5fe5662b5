// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/go-logr/logr"
	apiutils "github.com/ironcore-dev/provider-utils/apiutils/api"
	"github.com/ironcore-dev/provider-utils/eventutils/recorder"
)

// logRecorder writes lifecycle events to the log instead of retaining them.
type logRecorder struct {
	log logr.Logger
}

var _ recorder.EventRecorder = (*logRecorder)(nil)

func (r *logRecorder) Eventf(meta apiutils.Metadata, eventType, reason, messageFmt string, args ...interface{}) {
	r.log.Info(fmt.Sprintf(messageFmt, args...),
		"objectID", meta.ID, "type", eventType, "reason", reason)
}
