package apperr

import (
	"errors"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// ConnectCode maps a kind to a connect status code
func ConnectCode(kind Kind) connect.Code {
	switch kind {
	case FraudLimit:
		return connect.CodeResourceExhausted
	case Forbidden:
		return connect.CodePermissionDenied
	case Unauthenticated:
		return connect.CodeUnauthenticated
	case CampaignInactive, AlreadyPlayed, AlreadyRated, AlreadyUsed, Expired, NoRewardsAvailable:
		return connect.CodeFailedPrecondition
	case NotFound, InvalidCode, NoActiveCampaign:
		return connect.CodeNotFound
	case InvalidSession, InvalidInput:
		return connect.CodeInvalidArgument
	default:
		return connect.CodeInternal
	}
}

// ToConnect converts err into a *connect.Error. The kind and public message
// travel as a google.protobuf.Struct detail so clients can branch on kind.
// Internal causes are never exposed.
func ToConnect(err error) *connect.Error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	kind := KindOf(err)
	msg := PublicMessage(err)
	connectErr := connect.NewError(ConnectCode(kind), errors.New(msg))

	fields := map[string]any{
		"kind":    string(kind),
		"message": msg,
	}
	var e *Error
	if errors.As(err, &e) && kind != Internal && len(e.Meta) > 0 {
		meta := make(map[string]any, len(e.Meta))
		for k, v := range e.Meta {
			meta[k] = v
		}
		fields["meta"] = meta
	}

	detail, derr := structpb.NewStruct(fields)
	if derr != nil {
		return connectErr
	}
	if d, derr := connect.NewErrorDetail(detail); derr == nil {
		connectErr.AddDetail(d)
	}
	return connectErr
}

// FromConnect recovers an *Error from a connect error produced by ToConnect
func FromConnect(err error) *Error {
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return nil
	}
	for _, d := range ce.Details() {
		v, derr := d.Value()
		if derr != nil {
			continue
		}
		s, ok := v.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := s.GetFields()
		kind := Kind(fields["kind"].GetStringValue())
		if kind == "" {
			continue
		}
		out := &Error{Kind: kind, Message: fields["message"].GetStringValue()}
		for k, v := range fields["meta"].GetStructValue().GetFields() {
			out.WithMeta(k, v.GetStringValue())
		}
		return out
	}
	return &Error{Kind: Internal, Message: ce.Message()}
}
