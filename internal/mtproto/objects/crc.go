// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package objects holds the tagged-union values exchanged by the auth-key
// handshake and the session layer. Each constructor is its own Go type
// (rather than the single struct-with-discriminant the teacher's generator
// produces) with a stable CRC, per SPEC_FULL.md §9 "Tagged unions".
package objects

// Constructor identifiers, taken from core.telegram.org/schema/mtproto and
// core.telegram.org/schema.
const (
	crcReqPQ               uint32 = 0x60469778
	crcResPQ               uint32 = 0x05162463
	crcPQInnerData         uint32 = 0x83c95aec
	crcReqDHParams         uint32 = 0xd712e4be
	crcServerDHParamsOk    uint32 = 0xd0e8075c
	crcServerDHParamsFail  uint32 = 0x79cb045d
	crcServerDHInnerData   uint32 = 0xb5890dba
	crcClientDHInnerData   uint32 = 0x6643b654
	crcSetClientDHParams   uint32 = 0xf5045f1f
	crcDHGenOk             uint32 = 0x3bcbf734
	crcDHGenRetry          uint32 = 0x46dc1fb9
	crcDHGenFail           uint32 = 0xa69dae02

	crcMsgContainer      uint32 = 0x73f1f8dc
	crcNewSessionCreated uint32 = 0x9ec20908
	crcBadServerSalt     uint32 = 0xedab447b
	crcBadMsgNotify      uint32 = 0xa7eff811
	crcMsgsAck           uint32 = 0x62d6b459
	crcPing              uint32 = 0x7abe77ec
	crcPingDelayDiscon   uint32 = 0xf3427b8c
	crcPong              uint32 = 0x347773c5
	crcFutureSalt        uint32 = 0x0949d9dc
	crcFutureSalts       uint32 = 0xae500895
	crcRpcResult         uint32 = 0xf35c6d01
	crcRpcError          uint32 = 0x2144ca19
	crcGzipPacked        uint32 = 0x3072cfa1

	crcDcOption uint32 = 0x18b7a10d
	crcConfig   uint32 = 0x330b4067

	crcUpdatesState        uint32 = 0xa56c2a3e
	crcUpdatesDifference   uint32 = 0xf49ca0
	crcUpdatesDiffEmpty    uint32 = 0x5d75a138
	crcUpdatesTooLong      uint32 = 0xe317af7e
	crcUpdatesCombined     uint32 = 0x725b04c3
	crcUpdatesObj          uint32 = 0x74ae4240
	crcUpdateShortMessage  uint32 = 0x313bc7f8
	crcUpdateShortChatMsg  uint32 = 0x16812688
	crcUpdateNewMessage    uint32 = 0x1f2b0afd

	crcInputFileLocation uint32 = 0x14637196
	crcInputFile         uint32 = 0xf52ff27f
	crcInputFileBig      uint32 = 0xfa4f0bb5
	crcUploadFile        uint32 = 0x096a18d5
)
