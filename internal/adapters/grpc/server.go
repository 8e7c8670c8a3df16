package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/allumi/attribution-service/internal/application"
	"github.com/allumi/attribution-service/internal/domain"
)

type AttributionInternalService interface {
	ResolveAttribution(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AttributionInternalServer exposes a read-only resolution preview to sibling
// services. Previews score the current journey without writing anything.
type AttributionInternalServer struct {
	service *application.Service
}

func NewAttributionInternalServer(service *application.Service) *AttributionInternalServer {
	return &AttributionInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc AttributionInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "allumi.attribution.v1.AttributionInternalService",
		HandlerType: (*AttributionInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ResolveAttribution",
				Handler:    resolveAttributionHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "contracts/proto/attribution/v1/attribution_internal.proto",
	}, svc)
}

func (s *AttributionInternalServer) ResolveAttribution(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	accountID := fields["account_id"].GetStringValue()
	if accountID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing account_id")
	}

	preview := application.ResolvePreviewRequest{
		AccountID:  accountID,
		IdentityID: fields["identity_id"].GetStringValue(),
		Signals: application.ConversionSignals{
			DirectLinkID: fields["direct_link_id"].GetStringValue(),
			UserID:       fields["user_id"].GetStringValue(),
			SessionID:    fields["session_id"].GetStringValue(),
			CookieID:     fields["cookie_id"].GetStringValue(),
			Fingerprint:  fields["fingerprint"].GetStringValue(),
			Email:        fields["email"].GetStringValue(),
			IPAddress:    fields["ip_address"].GetStringValue(),
			UTM: domain.UTMParams{
				Source:   fields["utm_source"].GetStringValue(),
				Medium:   fields["utm_medium"].GetStringValue(),
				Campaign: fields["utm_campaign"].GetStringValue(),
			},
		},
	}
	if raw := fields["occurred_at"].GetStringValue(); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "occurred_at must be RFC3339")
		}
		preview.OccurredAt = &at
	}

	result, err := s.service.ResolvePreview(ctx, preview)
	if err != nil {
		if status.Code(err) != codes.Unknown {
			return nil, err
		}
		return nil, status.Errorf(codes.Internal, "resolve: %v", err)
	}

	out := map[string]any{
		"method":     result.Method,
		"confidence": float64(result.Confidence),
		"candidates": float64(result.Candidates),
	}
	if result.Touchpoint != nil {
		out["touchpoint_id"] = result.Touchpoint.TouchpointID
		out["channel"] = result.Touchpoint.ChannelKey()
	}
	if len(result.MultiTouch) > 0 {
		credits := make([]any, 0, len(result.MultiTouch))
		for _, c := range result.MultiTouch {
			credits = append(credits, map[string]any{
				"channel": c.Channel,
				"weight":  c.Weight,
			})
		}
		out["multi_touch"] = credits
	}

	resp, err := structpb.NewStruct(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func resolveAttributionHandler(svc AttributionInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.ResolveAttribution(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/allumi.attribution.v1.AttributionInternalService/ResolveAttribution",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.ResolveAttribution(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
