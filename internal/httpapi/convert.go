package httpapi

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
)

// Readers without a generated schema send admissions as a
// google.protobuf.Struct whose keys match the JSON field names.

// ── Admission request ────────────────────────────────────────────────────────

func admissionRequestFromStruct(st *structpb.Struct) (types.AdmissionRequest, error) {
	var req types.AdmissionRequest
	for k, v := range st.GetFields() {
		var err error
		switch k {
		case "card_number":
			req.CardNumber, err = stringField(k, v)
		case "tenant_id":
			req.TenantID, err = intField(k, v)
		case "device_code":
			req.DeviceCode, err = stringField(k, v)
		case "event_timestamp":
			req.EventTimestamp, err = stringField(k, v)
		case "client_request_id":
			req.ClientRequestID, err = stringField(k, v)
		case "source":
			req.Source, err = stringField(k, v)
		case "menu_label":
			req.MenuLabel, err = stringField(k, v)
		default:
			err = fmt.Errorf("unknown field %q", k)
		}
		if err != nil {
			return types.AdmissionRequest{}, err
		}
	}
	return req, nil
}

func stringField(name string, v *structpb.Value) (string, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NullValue:
		return "", nil
	default:
		return "", fmt.Errorf("field %q must be a string", name)
	}
}

// intField accepts a whole number or a decimal string.
func intField(name string, v *structpb.Value) (int64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return 0, fmt.Errorf("field %q must be an integer", name)
		}
		return int64(f), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q must be an integer", name)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("field %q must be an integer", name)
	}
}

// ── Admission response ───────────────────────────────────────────────────────

func admissionResponseToStruct(r types.AdmissionResponse) (*structpb.Struct, error) {
	m := map[string]any{
		"status":            r.Status,
		"reason":            r.Reason,
		"client_request_id": r.ClientRequestID,
	}
	if r.CommitTimestamp != "" {
		m["commit_timestamp"] = r.CommitTimestamp
	}
	if r.Ticket != "" {
		m["ticket"] = r.Ticket
	}
	if r.QueueNumber != nil {
		m["queue_number"] = *r.QueueNumber
	}
	if r.RemainingForTarget != nil {
		m["remaining_for_target"] = *r.RemainingForTarget
	}
	if r.MaxRemainingAny != nil {
		m["max_remaining_any"] = *r.MaxRemainingAny
	}
	if s := r.TransactionSummary; s != nil {
		m["transaction_summary"] = map[string]any{
			"event_id":       s.EventID,
			"card_number":    s.CardNumber,
			"employee_id":    s.EmployeeID,
			"employee_name":  s.EmployeeName,
			"employee_group": s.EmployeeGroup,
			"tenant_id":      s.TenantID,
			"tenant_name":    s.TenantName,
			"event_time":     s.EventTime,
			"day_key":        s.DayKey,
			"source":         s.Source,
			"menu_label":     s.MenuLabel,
		}
	}
	return structpb.NewStruct(m)
}

func errorToStruct(code, msg string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"error": code, "message": msg})
}
