package server

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name of the control surface.
const ServiceName = "whisperhost.v1.Control"

const (
	methodInit       = "/" + ServiceName + "/Init"
	methodFree       = "/" + ServiceName + "/Free"
	methodTranscribe = "/" + ServiceName + "/Transcribe"
	methodStatus     = "/" + ServiceName + "/Status"
	methodWait       = "/" + ServiceName + "/Wait"
	methodCancel     = "/" + ServiceName + "/Cancel"
	methodEvents     = "/" + ServiceName + "/Events"
)

// ControlServer is the server API of the control surface.
type ControlServer interface {
	Init(context.Context, *InitRequest) (*InitResponse, error)
	Free(context.Context, *FreeRequest) (*FreeResponse, error)
	Transcribe(context.Context, *TranscribeRequest) (*TranscribeResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Wait(context.Context, *WaitRequest) (*WaitResponse, error)
	Cancel(context.Context, *CancelRequest) (*CancelResponse, error)
	Events(*EventsRequest, EventsServer) error
}

// EventsServer is the server side of the Events stream.
type EventsServer interface {
	Send(*Event) error
	grpc.ServerStream
}

type eventsServer struct {
	grpc.ServerStream
}

func (x *eventsServer) Send(m *Event) error {
	return x.ServerStream.SendMsg(m)
}

// EventsClient is the client side of the Events stream.
type EventsClient interface {
	Recv() (*Event, error)
	grpc.ClientStream
}

type eventsClient struct {
	grpc.ClientStream
}

func (x *eventsClient) Recv() (*Event, error) {
	m := new(Event)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(ControlServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	m := new(EventsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ControlServer).Events(m, &eventsServer{stream})
}

// ControlServiceDesc describes the control service for grpc.Server.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Init", Handler: unaryHandler(methodInit, ControlServer.Init)},
		{MethodName: "Free", Handler: unaryHandler(methodFree, ControlServer.Free)},
		{MethodName: "Transcribe", Handler: unaryHandler(methodTranscribe, ControlServer.Transcribe)},
		{MethodName: "Status", Handler: unaryHandler(methodStatus, ControlServer.Status)},
		{MethodName: "Wait", Handler: unaryHandler(methodWait, ControlServer.Wait)},
		{MethodName: "Cancel", Handler: unaryHandler(methodCancel, ControlServer.Cancel)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "whisperhost/v1/control",
}

// Client calls the control service over a gRPC connection using the JSON
// codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Req any, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Init(ctx context.Context, in *InitRequest, opts ...grpc.CallOption) (*InitResponse, error) {
	return invoke[InitRequest, InitResponse](ctx, c.cc, methodInit, in, opts)
}

func (c *Client) Free(ctx context.Context, in *FreeRequest, opts ...grpc.CallOption) (*FreeResponse, error) {
	return invoke[FreeRequest, FreeResponse](ctx, c.cc, methodFree, in, opts)
}

func (c *Client) Transcribe(ctx context.Context, in *TranscribeRequest, opts ...grpc.CallOption) (*TranscribeResponse, error) {
	return invoke[TranscribeRequest, TranscribeResponse](ctx, c.cc, methodTranscribe, in, opts)
}

func (c *Client) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusRequest, StatusResponse](ctx, c.cc, methodStatus, in, opts)
}

func (c *Client) Wait(ctx context.Context, in *WaitRequest, opts ...grpc.CallOption) (*WaitResponse, error) {
	return invoke[WaitRequest, WaitResponse](ctx, c.cc, methodWait, in, opts)
}

func (c *Client) Cancel(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	return invoke[CancelRequest, CancelResponse](ctx, c.cc, methodCancel, in, opts)
}

// Events opens the event stream. The first message is always EventReady.
func (c *Client) Events(ctx context.Context, in *EventsRequest, opts ...grpc.CallOption) (EventsClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ControlServiceDesc.Streams[0], methodEvents, opts...)
	if err != nil {
		return nil, err
	}
	x := &eventsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
