package rpc

// Cardinality 请求/回应两端是单条还是流
type Cardinality int

const (
	Cardinality_UnaryUnary   Cardinality = iota + 1 // 一问一答
	Cardinality_UnaryStream                         // 服务端流
	Cardinality_StreamUnary                         // 客户端流
	Cardinality_StreamStream                        // 双向流
)

// CardinalityOf 由两端是否流式得到Cardinality
func CardinalityOf(clientStreaming, serverStreaming bool) Cardinality {
	switch {
	case clientStreaming && serverStreaming:
		return Cardinality_StreamStream
	case clientStreaming:
		return Cardinality_StreamUnary
	case serverStreaming:
		return Cardinality_UnaryStream
	}
	return Cardinality_UnaryUnary
}

func (c Cardinality) Valid() bool {
	return c >= Cardinality_UnaryUnary && c <= Cardinality_StreamStream
}

func (c Cardinality) ClientStreaming() bool {
	return c == Cardinality_StreamUnary || c == Cardinality_StreamStream
}

func (c Cardinality) ServerStreaming() bool {
	return c == Cardinality_UnaryStream || c == Cardinality_StreamStream
}

func (c Cardinality) String() string {
	switch c {
	case Cardinality_UnaryUnary:
		return "unary_unary"
	case Cardinality_UnaryStream:
		return "unary_stream"
	case Cardinality_StreamUnary:
		return "stream_unary"
	case Cardinality_StreamStream:
		return "stream_stream"
	}
	return "invalid"
}
