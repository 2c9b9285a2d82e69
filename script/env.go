/* Copyright 2021 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package script

// envSource is the ECMAScript library installed into the runtime before any
// transform compiles.  It declares the script-visible globals and the
// reactive operators.  The STATUS_*, STRATEGY_*, and TYPE_* constants are
// set from Go before this runs.
//
// The empty marker in script space is null; undefined is normalized to null
// at the create_vss_signal boundary.
const envSource = `
// Default timeout for STRATEGY_HOLD_TIMEOUT (in seconds).
var DEFAULT_HOLD_TIMEOUT = 5.0;

// Signal values (read-only except through provide()).
var signal_values = {};

// Quality codes for input signals.
var signal_status = {};

// Per-signal private state, reached via get_state().
var signal_states = {};

// Signals with pending time-based operations (like delayed()).
var signals_pending_reevaluation = {};

// Context for the node currently executing.
var _current_signal = null;
var _current_time = 0;

// Dependencies for the current node.
var deps = {};
var deps_status = {};

function is_nil(x) {
	return x === null || x === undefined;
}

function create_vss_signal(path, value, datatype, status) {
	if (is_nil(status)) status = STATUS_VALID;
	if (is_nil(value)) {
		value = null;
		if (status === STATUS_VALID) status = STATUS_INVALID;
	}
	// Clean up float values to avoid displaying noise.
	if ((datatype === TYPE_FLOAT || datatype === TYPE_DOUBLE) &&
		typeof value === "number" && Math.abs(value) < 1e-6) {
		value = 0;
	}
	return { path: path, value: value, type: datatype, status: status };
}

// Each signal gets private state.
function get_state() {
	if (!_current_signal) throw new Error("get_state() called outside signal context");
	if (!signal_states[_current_signal]) signal_states[_current_signal] = {};
	return signal_states[_current_signal];
}

// Ask the evaluator to revisit this signal even without new input.
function mark_pending() {
	if (!_current_signal) throw new Error("mark_pending() called outside signal context");
	signals_pending_reevaluation[_current_signal] = true;
}

function clear_pending() {
	if (!_current_signal) throw new Error("clear_pending() called outside signal context");
	delete signals_pending_reevaluation[_current_signal];
}

// A transform may only write its own slot.
function provide(value) {
	if (!_current_signal) throw new Error("provide() called outside signal context");
	signal_values[_current_signal] = is_nil(value) ? null : value;
	return value;
}

// Stateful operators.

function lowpass(value, alpha, invalid_strategy) {
	if (is_nil(invalid_strategy)) invalid_strategy = STRATEGY_PROPAGATE;
	var state = get_state();

	if (is_nil(value)) {
		if (invalid_strategy === STRATEGY_HOLD) {
			return is_nil(state.last_valid_output) ? null : state.last_valid_output;
		}
		if (invalid_strategy === STRATEGY_HOLD_TIMEOUT) {
			if (is_nil(state.invalid_since)) state.invalid_since = _current_time;
			if (_current_time - state.invalid_since < DEFAULT_HOLD_TIMEOUT) {
				return is_nil(state.last_valid_output) ? null : state.last_valid_output;
			}
			return null;
		}
		return null;
	}

	state.invalid_since = null;
	if (is_nil(state.lp)) {
		state.lp = value;
	} else {
		state.lp = alpha * value + (1 - alpha) * state.lp;
		if (Math.abs(state.lp) < 1e-6) state.lp = 0;
	}
	state.last_valid_output = state.lp;
	return state.lp;
}

function moving_avg(value, window) {
	var state = get_state();
	if (is_nil(value)) {
		// Skip the sample, but keep answering with the current mean.
		if (state.ma_hist && 0 < state.ma_hist.length) {
			return state.ma_sum / state.ma_hist.length;
		}
		return null;
	}
	if (!state.ma_hist) state.ma_hist = [];
	if (is_nil(state.ma_sum)) state.ma_sum = 0;

	state.ma_hist.push(value);
	state.ma_sum += value;
	if (window < state.ma_hist.length) {
		state.ma_sum -= state.ma_hist.shift();
	}
	return state.ma_sum / state.ma_hist.length;
}

function derivative(value) {
	if (is_nil(value)) return null;

	var state = get_state();
	var t = _current_time;

	if (is_nil(state.d_last_v)) {
		state.d_last_v = value;
		state.d_last_t = t;
		return 0;
	}

	var dt = t - state.d_last_t;
	var deriv;
	if (0.01 < dt) {
		deriv = (value - state.d_last_v) / dt;
		if (Math.abs(deriv) < 1e-6) deriv = 0;
		state.d_last_v = value;
		state.d_last_t = t;
	} else {
		// Not enough time has passed; reuse the last derivative.
		deriv = is_nil(state.d_last_deriv) ? 0 : state.d_last_deriv;
	}
	state.d_last_deriv = deriv;
	return deriv;
}

function median(value, window) {
	var state = get_state();
	if (!state.med_hist) state.med_hist = [];
	if (!is_nil(value)) {
		state.med_hist.push(value);
		if (window < state.med_hist.length) state.med_hist.shift();
	}
	if (state.med_hist.length === 0) return null;

	var sorted = state.med_hist.slice();
	sorted.sort(function(a, b) { return a - b; });
	return sorted[Math.floor(sorted.length / 2)];
}

function rate_limit(value, max_rate) {
	if (is_nil(value)) return null;

	var state = get_state();
	var t = _current_time;

	if (is_nil(state.rl_last_v)) {
		state.rl_last_v = value;
		state.rl_last_t = t;
		return value;
	}

	var dt = t - state.rl_last_t;
	if (0 < dt) {
		var max_change = max_rate * dt;
		var change = value - state.rl_last_v;
		if (max_change < Math.abs(change)) {
			value = state.rl_last_v + (0 < change ? max_change : -max_change);
		}
	}
	state.rl_last_v = value;
	state.rl_last_t = t;
	return value;
}

// Pure utilities.

function clamp(value, min, max) {
	if (is_nil(value)) return null;
	return Math.max(min, Math.min(max, value));
}

function clean_float(value) {
	if (typeof value === "number" && Math.abs(value) < 1e-6) return 0;
	return value;
}

function deadband(value, threshold) {
	if (is_nil(value)) return null;
	return Math.abs(value) < threshold ? 0 : value;
}

function sustained_condition(condition, duration_ms) {
	var state = get_state();
	var now = _current_time * 1000;

	if (condition) {
		if (is_nil(state.sc_start)) state.sc_start = now;
		return duration_ms <= now - state.sc_start;
	}
	state.sc_start = null;
	return false;
}

function rising_edge(value) {
	var state = get_state();
	var edge = !!(value && !state.re_last);
	state.re_last = !!value;
	return edge;
}

function falling_edge(value) {
	var state = get_state();
	var edge = !!(!value && state.fe_last);
	state.fe_last = !!value;
	return edge;
}

// delayed emits the new value only after it has held for delay_ms.  While
// waiting it keeps the signal on the pending set so the evaluator's second
// phase revisits it without fresh input.
function delayed(value, delay_ms) {
	var state = get_state();
	var now = _current_time;

	if (state.delay_target_value !== value) {
		state.delay_target_value = value;
		state.delay_start_time = now;
		state.delay_pending = true;
		mark_pending();
	}

	if (state.delay_pending) {
		var elapsed_ms = (now - state.delay_start_time) * 1000;
		if (delay_ms <= elapsed_ms) {
			state.delay_output_value = state.delay_target_value;
			state.delay_pending = false;
			clear_pending();
		} else {
			mark_pending();
		}
	}

	return is_nil(state.delay_output_value) ? null : state.delay_output_value;
}

// Per-signal compiled transforms land here.
var transform_functions = {};
`
