package connectors

const (
	TopicConnStatus  = "conn.status"
	TopicFrameIn     = "frame.in"
	TopicCommandOut  = "command.out"
	TopicRawFrameIn  = "raw.frame.in"
	TopicRawFrameOut = "raw.frame.out"
)
