// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package publish sends station telemetry upstream and reports the quality of
// the wireless link it goes through.
//
// HTTP posts each payload as JSON to a collector URL. MQTT publishes it on
// stations/<device_id>/telemetry. Both satisfy station.Publisher.
package publish
