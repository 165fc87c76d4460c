package dabgent

import "context"

// Link describes a cross-aggregate relationship: an event on aggregate A
// may cause a command on aggregate B (Forward), and an event on B may cause
// a command back on A (Backward). Either direction may be nil if the
// relationship is one-way. translate functions return ok=false to mean "no
// command for this envelope" rather than an error — most events on a linked
// aggregate are not link-relevant.
type Link[CA any, EA Event, SA any, CB any, EB Event, SB any] struct {
	// Forward maps an event committed on A to a command for B, and the
	// target B aggregate id to issue it against.
	Forward func(env Envelope[EA]) (cmd CB, targetID string, ok bool)
	// Backward maps an event committed on B to a command for A.
	Backward func(env Envelope[EB]) (cmd CA, targetID string, ok bool)
}

// forwardLinkHandler issues a command on runtime B's Handler for every A
// envelope that Link.Forward maps to one, carrying the originating
// envelope's metadata forward so causation_id chains survive the hop.
type forwardLinkHandler[AA Aggregate[CA, EA, SA], CA any, EA Event, SA any, AB Aggregate[CB, EB, SB], CB any, EB Event, SB any] struct {
	link      Link[CA, EA, SA, CB, EB, SB]
	streamID  string
	handlerB  *Handler[AB, CB, EB, SB]
}

func (h *forwardLinkHandler[AA, CA, EA, SA, AB, CB, EB, SB]) Process(ctx context.Context, _ *Handler[AA, CA, EA, SA], env Envelope[EA]) error {
	cmd, targetID, ok := h.link.Forward(env)
	if !ok {
		return nil
	}
	meta := env.Metadata.Caused(env.ID)
	_, err := h.handlerB.Execute(ctx, h.streamID, targetID, cmd, meta)
	return err
}

type backwardLinkHandler[AA Aggregate[CA, EA, SA], CA any, EA Event, SA any, AB Aggregate[CB, EB, SB], CB any, EB Event, SB any] struct {
	link     Link[CA, EA, SA, CB, EB, SB]
	streamID string
	handlerA *Handler[AA, CA, EA, SA]
}

func (h *backwardLinkHandler[AA, CA, EA, SA, AB, CB, EB, SB]) Process(ctx context.Context, _ *Handler[AB, CB, EB, SB], env Envelope[EB]) error {
	cmd, targetID, ok := h.link.Backward(env)
	if !ok {
		return nil
	}
	meta := env.Metadata.Caused(env.ID)
	_, err := h.handlerA.Execute(ctx, h.streamID, targetID, cmd, meta)
	return err
}

// LinkRuntimes wires link's Forward direction onto runtimeA (so A's events
// drive commands on B) and Backward onto runtimeB (so B's events drive
// commands back on A). Either direction is skipped if the corresponding
// link function is nil.
func LinkRuntimes[AA Aggregate[CA, EA, SA], CA any, EA Event, SA any, AB Aggregate[CB, EB, SB], CB any, EB Event, SB any](
	streamID string,
	runtimeA *Runtime[AA, CA, EA, SA], runtimeB *Runtime[AB, CB, EB, SB],
	link Link[CA, EA, SA, CB, EB, SB],
) {
	if link.Forward != nil {
		runtimeA.WithHandler(&forwardLinkHandler[AA, CA, EA, SA, AB, CB, EB, SB]{
			link: link, streamID: streamID, handlerB: runtimeB.Handler(),
		})
	}
	if link.Backward != nil {
		runtimeB.WithHandler(&backwardLinkHandler[AA, CA, EA, SA, AB, CB, EB, SB]{
			link: link, streamID: streamID, handlerA: runtimeA.Handler(),
		})
	}
}
