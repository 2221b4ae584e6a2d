// Package receiver implements driftlog.v1.LogService, the gRPC transport for
// inserting and querying log records.
//
// Messages are google.protobuf.Struct values so no generated code is needed:
//
//	Insert({service_name, message, timestamp?, id?}) -> {id, message}
//	Query({service_name?, start?, end?, expr?, limit?}) -> [ {id, service_name, timestamp, message}, ... ]
//
// Validation failures map to codes.InvalidArgument and duplicate ids to
// codes.AlreadyExists. Authentication is enforced upstream by the server
// interceptor (see package auth).
//
// Client wraps any grpc.ClientConnInterface for callers of the service.
package receiver
