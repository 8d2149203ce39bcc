package mfclassic

// Halt sends the encrypted HLTA. The card confirms by staying silent; the
// session then returns to Idle and the link is reset. If the card answers
// the error is a protocol error and the state is left as it was: treat the
// card as being in an unknown state and reactivate it. Any link outcome
// other than the timeout, including a lost card, is reported the same way.
//
// Halt does not require an authenticated session, so calling it twice is
// safe.
func (p *Poller) Halt() error {
	p.txPlain.CopyBytes(hltaFrame)
	if cause := p.exchange(OutcomeSilence); cause != nil {
		return &CommandError{Cmd: CmdHalt, Kind: ErrProtocol, Cause: cause, Detail: "halt must not be answered"}
	}
	p.state = AuthStateIdle
	p.link.SetIdle()
	return nil
}
