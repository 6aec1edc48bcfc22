package signal

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	_ = ctl.sendJSON(conn, Envelope{Type: TypePong})
}
